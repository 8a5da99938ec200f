package sqldb

import "testing"

func TestKeysPerQuery(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		max  int
		want int
	}{
		{"default", 0, DefaultMaxParams / 3},
		{"sql server", 2000, 666},
		{"tiny", 2, 1},
		{"exact", 9, 3},
	}
	for _, tt := range tests {
		got := Dialect{MaxParams: tt.max}.keysPerQuery()
		if got != tt.want {
			t.Fatalf("%s: got=%d want=%d", tt.name, got, tt.want)
		}
		if tt.max >= 3 && got*3 > tt.max {
			t.Fatalf("%s: %d keys exceed %d params", tt.name, got, tt.max)
		}
	}
}

func TestSplitStatements(t *testing.T) {
	t.Parallel()
	got := SplitStatements("-- header\nCREATE TABLE a (x INT);\n\n-- only a comment;\nCREATE INDEX i ON a (x);\n")
	if len(got) != 2 {
		t.Fatalf("statements got=%q", got)
	}
}
