package disposable

import (
	"bufio"
	_ "embed"
	"strings"
	"sync"
)

//go:embed list.txt
var listFile string

// domains parses list.txt on first use. Blank lines and '#' comments,
// whole-line or trailing, are ignored.
var domains = sync.OnceValue(func() map[string]struct{} {
	set := make(map[string]struct{}, 128)
	sc := bufio.NewScanner(strings.NewReader(listFile))
	for sc.Scan() {
		line, _, _ := strings.Cut(sc.Text(), "#")
		if d := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(line)), "."); d != "" {
			set[d] = struct{}{}
		}
	}
	return set
})
