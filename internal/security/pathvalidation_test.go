package security

import (
	"path/filepath"
	"testing"
)

func TestValidatePathWithinDirectory(t *testing.T) {
	root := t.TempDir()

	cases := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"direct child", filepath.Join(root, "session1", "Final.tiff"), false},
		{"nested child", filepath.Join(root, "a", "b", "c.jpg"), false},
		{"dotdot escape", filepath.Join(root, "..", "etc", "passwd"), true},
		{"embedded traversal", filepath.Join(root, "session1", "..", "..", "secret"), true},
		{"root itself", root, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := ValidatePathWithinDirectory(c.path, root)
			if (err != nil) != c.wantErr {
				t.Errorf("ValidatePathWithinDirectory(%q) error = %v, wantErr %v", c.path, err, c.wantErr)
			}
		})
	}
}

func TestSanitizeSegment(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"", "unknown"},
		{"M31 Andromeda", "M31_Andromeda"},
		{"../../etc", "etc"},
		{"Final.tiff", "Final.tiff"},
		{"a  b!!c", "a_b_c"},
		{"___", "unknown"},
	}
	for _, c := range cases {
		if got := SanitizeSegment(c.in); got != c.want {
			t.Errorf("SanitizeSegment(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
