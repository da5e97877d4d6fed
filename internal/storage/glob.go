package storage

import (
	"fmt"
	"path"
	"strings"
)

// matchGlob matches name against pattern one path segment at a time. The
// segment counts must line up, so song_data/*/*/*/*.json only matches
// files exactly four levels below song_data.
func matchGlob(pattern, name string) (bool, error) {
	patSegs := strings.Split(pattern, "/")
	nameSegs := strings.Split(name, "/")
	if len(patSegs) != len(nameSegs) {
		return false, nil
	}
	for i, pat := range patSegs {
		ok, err := path.Match(pat, nameSegs[i])
		if err != nil {
			return false, fmt.Errorf("invalid glob pattern %q: %w", pattern, err)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// globPrefix returns the leading literal portion of a glob pattern, used
// to narrow object listings before matching.
func globPrefix(pattern string) string {
	var prefix []string
	for _, seg := range strings.Split(pattern, "/") {
		if strings.ContainsAny(seg, "*?[") {
			break
		}
		prefix = append(prefix, seg)
	}
	if len(prefix) == 0 {
		return ""
	}
	return strings.Join(prefix, "/") + "/"
}
