package scope

import "testing"

const sampleDiff = `diff --git a/main.go b/main.go
index 111..222 100644
--- a/main.go
+++ b/main.go
@@ -1,3 +1,4 @@
 package main
+import "fmt"
-import "os"
 func main() {}
diff --git a/new.txt b/new.txt
new file mode 100644
index 000..111
--- /dev/null
+++ b/new.txt
@@ -0,0 +1,2 @@
+line one
+line two
diff --git a/old.txt b/old.txt
deleted file mode 100644
index 111..000
--- a/old.txt
+++ /dev/null
@@ -1,1 +0,0 @@
-gone
`

func TestParseDiffClassifiesFiles(t *testing.T) {
	s := ParseDiff(sampleDiff)

	if len(s.ModifiedFiles) != 1 || s.ModifiedFiles[0] != "main.go" {
		t.Fatalf("expected main.go modified, got %v", s.ModifiedFiles)
	}
	if len(s.CreatedFiles) != 1 || s.CreatedFiles[0] != "new.txt" {
		t.Fatalf("expected new.txt created, got %v", s.CreatedFiles)
	}
	if len(s.DeletedFiles) != 1 || s.DeletedFiles[0] != "old.txt" {
		t.Fatalf("expected old.txt deleted, got %v", s.DeletedFiles)
	}
}

func TestParseDiffCountsLinesExcludingHeaders(t *testing.T) {
	s := ParseDiff(sampleDiff)

	if s.LinesPerFile["main.go"] != 2 {
		t.Fatalf("expected main.go to have 2 changed lines (+/-), got %d", s.LinesPerFile["main.go"])
	}
	if s.LinesPerFile["new.txt"] != 2 {
		t.Fatalf("expected new.txt to have 2 added lines, got %d", s.LinesPerFile["new.txt"])
	}
	if s.LinesPerFile["old.txt"] != 1 {
		t.Fatalf("expected old.txt to have 1 removed line, got %d", s.LinesPerFile["old.txt"])
	}
	if s.TotalLinesChanged != 5 {
		t.Fatalf("expected total of 5 changed lines, got %d", s.TotalLinesChanged)
	}
}

func TestCheckBlocksProtectedPathModification(t *testing.T) {
	s := ParseDiff(`diff --git a/.env b/.env
--- a/.env
+++ b/.env
+SECRET=1
`)
	if _, err := Check(s, DefaultLimits()); err == nil {
		t.Fatalf("expected protected-path rejection for .env")
	}
}

func TestCheckWarnsOnSensitiveExtensionWithoutBlocking(t *testing.T) {
	s := ParseDiff(`diff --git a/config/app.secret b/config/app.secret
--- a/config/app.secret
+++ b/config/app.secret
+token=abc
`)
	warnings, err := Check(s, DefaultLimits())
	if err != nil {
		t.Fatalf("expected sensitive extension to warn, not block: %v", err)
	}
	if len(warnings) != 1 {
		t.Fatalf("expected exactly one warning, got %v", warnings)
	}
}

func TestCheckRejectsExceedingFileCountLimit(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxModifiedFiles = 1
	s := ParseDiff(sampleDiff) // only 1 modified file, so extend it
	s.ModifiedFiles = append(s.ModifiedFiles, "extra.go")

	if _, err := Check(s, limits); err == nil {
		t.Fatalf("expected rejection for exceeding modified file count")
	}
}

func TestCheckRejectsExceedingTotalLineLimit(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxTotalLines = 1
	s := ParseDiff(sampleDiff)

	if _, err := Check(s, limits); err == nil {
		t.Fatalf("expected rejection for exceeding total line limit")
	}
}

func TestCheckPassesCleanSmallDiff(t *testing.T) {
	s := ParseDiff(sampleDiff)
	warnings, err := Check(s, DefaultLimits())
	if err != nil {
		t.Fatalf("expected clean diff to pass, got %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", warnings)
	}
}
