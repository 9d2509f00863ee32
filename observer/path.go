package observer

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

var bailRE = regexp.MustCompile(`[^\w.$]`)

// PathGetter resolves a compiled path against a root value.
type PathGetter func(root any) any

type compiledPath struct {
	path string
	get  PathGetter
}

// ParsePath compiles a dot-delimited path such as "user.tags.0" into a getter
// that walks reactive objects and arrays, registering every step with the
// active watcher. A missing step yields nil.
func (s *System) ParsePath(path string) (PathGetter, error) {
	key := xxhash.Sum64String(path)
	if c, ok := s.paths[key]; ok && c.path == path {
		return c.get, nil
	}
	if bailRE.MatchString(path) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}

	segments := strings.Split(path, ".")
	get := func(root any) any {
		v := root
		for _, seg := range segments {
			switch t := v.(type) {
			case *Object:
				v = t.Get(seg)
			case *Array:
				i, err := strconv.Atoi(seg)
				if err != nil {
					return nil
				}
				v = t.Get(i)
			default:
				return nil
			}
		}
		return v
	}
	s.paths[key] = compiledPath{path: path, get: get}
	return get, nil
}
