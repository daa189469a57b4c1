package logs

import "strings"

// Filter selects log lines by item, stage or run id. Empty fields match
// everything.
type Filter struct {
	Item  string
	Stage string
	RunID string
}

// Match reports whether line carries every requested field.
func (f Filter) Match(line string) bool {
	if f.Item != "" && !hasField(line, "item", f.Item) {
		return false
	}
	if f.RunID != "" && !hasField(line, "run_id", f.RunID) {
		return false
	}
	if f.Stage != "" && !hasStage(line, f.Stage) {
		return false
	}
	return true
}

func (f Filter) empty() bool {
	return f.Item == "" && f.Stage == "" && f.RunID == ""
}

func hasField(line, key, value string) bool {
	if strings.Contains(line, `"`+key+`":"`+value+`"`) {
		return true
	}
	token := key + "=" + value
	for rest := line; ; {
		i := strings.Index(rest, token)
		if i < 0 {
			return false
		}
		end := i + len(token)
		if (i == 0 || rest[i-1] == ' ') && (end == len(rest) || rest[end] == ' ') {
			return true
		}
		rest = rest[end:]
	}
}

// hasStage matches the console "component/stage:" or "stage:" prefix as
// well as the JSON stage field.
func hasStage(line, stage string) bool {
	return hasField(line, "stage", stage) ||
		strings.Contains(line, "/"+stage+": ") ||
		strings.Contains(line, " "+stage+": ")
}
