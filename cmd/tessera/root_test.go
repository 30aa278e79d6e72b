package main

import (
	"bytes"
	"strings"
	"testing"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}

	rc := NewRootCommand(strings.NewReader(""), stdout, stderr)
	rc.SetArgs(args)

	err := rc.Execute()
	return stdout.String(), err
}

func TestGenerateConfig(t *testing.T) {
	t.Setenv("TESSERA_TABLE", "sample_unfiltered")

	out, err := run(t, "generate-config", "--workers", "3")
	if err != nil {
		t.Fatal(err)
	}

	for _, want := range []string{`table = "sample_unfiltered"`, "workers = 3", `transport = "embedded"`} {
		if !strings.Contains(out, want) {
			t.Errorf("generated config lacks %s:\n%s", want, out)
		}
	}
}

func TestInvalidConfigRejected(t *testing.T) {
	if _, err := run(t, "generate-config", "--log-level", "chatty"); err == nil {
		t.Error("expected invalid log level to fail")
	}
}

func TestExecQuery(t *testing.T) {
	out, err := run(t, "exec", "SELECT 1 AS one, 'a' AS letter")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "one") || !strings.Contains(out, "(1 rows)") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestExploreMemory(t *testing.T) {
	out, err := run(t, "explore",
		"--transport", "memory",
		"--cells", "300",
		"--clusters", "3",
		"--cluster", "1",
		"--qc", "percent_mt=0:4",
		"--log-level", "error",
	)
	if err != nil {
		t.Fatal(err)
	}

	if !strings.Contains(out, "selected 300 of 300 cells") {
		t.Errorf("missing unfiltered summary:\n%s", out)
	}
	if strings.Count(out, "selected ") < 2 {
		t.Errorf("brushes should print a filtered summary:\n%s", out)
	}
}
