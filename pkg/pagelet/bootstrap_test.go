package pagelet

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestBootstrapDependenciesAreArrays(t *testing.T) {
	tests := []struct {
		name string
		deps Dependencies
		want string
	}{
		{"empty", Dependencies{}, `"dependencies":{"css":[],"js":[]}`},
		{"js only", Dependencies{JS: []string{"/dist/app.js"}}, `"dependencies":{"css":[],"js":["/dist/app.js"]}`},
		{"both", Dependencies{CSS: []string{"/a.css"}, JS: []string{"/a.js"}}, `"dependencies":{"css":["/a.css"],"js":["/a.js"]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(&Bootstrap{Parent: "home", Mode: ModeAsync, Dependencies: tt.deps})
			if err != nil {
				t.Fatal(err)
			}
			if !strings.Contains(string(data), tt.want) {
				t.Errorf("json = %s, want it to contain %s", data, tt.want)
			}
		})
	}
}
