package assembly

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func makeRuntimeVersions(t *testing.T, versions ...string) string {
	t.Helper()
	root := t.TempDir()
	base := filepath.Join(root, "shared", "Microsoft.NETCore.App")
	for _, v := range versions {
		if err := os.MkdirAll(filepath.Join(base, v), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func TestProbeRuntimeDirectoryExactMatch(t *testing.T) {
	root := makeRuntimeVersions(t, "7.0.1", "7.0.2", "8.0.0")

	got, ok := ProbeRuntimeDirectory(root, "Microsoft.NETCore.App", "7.0.1")
	if !ok {
		t.Fatal("expected an exact version match to succeed")
	}
	want := filepath.Join(root, "shared", "Microsoft.NETCore.App", "7.0.1")
	if got != want {
		t.Errorf("ProbeRuntimeDirectory = %q, want %q", got, want)
	}
}

func TestProbeRuntimeDirectoryMajorMinorFallback(t *testing.T) {
	root := makeRuntimeVersions(t, "7.0.1", "7.0.5", "8.0.0")

	got, ok := ProbeRuntimeDirectory(root, "Microsoft.NETCore.App", "7.0.9")
	if !ok {
		t.Fatal("expected a major.minor fallback match to succeed")
	}
	want := filepath.Join(root, "shared", "Microsoft.NETCore.App", "7.0.5")
	if got != want {
		t.Errorf("ProbeRuntimeDirectory fallback = %q, want highest 7.0.x (%q)", got, want)
	}
}

func TestProbeRuntimeDirectoryNoWantPicksHighest(t *testing.T) {
	root := makeRuntimeVersions(t, "7.0.1", "8.0.0", "8.0.3")

	got, ok := ProbeRuntimeDirectory(root, "Microsoft.NETCore.App", "")
	if !ok {
		t.Fatal("expected an empty wantVersion to pick the highest installed version")
	}
	want := filepath.Join(root, "shared", "Microsoft.NETCore.App", "8.0.3")
	if got != want {
		t.Errorf("ProbeRuntimeDirectory() = %q, want %q", got, want)
	}
}

func TestProbeRuntimeDirectoryNoneInstalled(t *testing.T) {
	root := t.TempDir()
	if _, ok := ProbeRuntimeDirectory(root, "Microsoft.NETCore.App", ""); ok {
		t.Error("expected probe to fail when the shared runtime root doesn't exist")
	}
}

func TestProbeRuntimeDirectoryNoMatchingMajorMinor(t *testing.T) {
	root := makeRuntimeVersions(t, "6.0.0")
	if _, ok := ProbeRuntimeDirectory(root, "Microsoft.NETCore.App", "7.0.0"); ok {
		t.Error("expected probe to fail when no installed version shares the requested major.minor")
	}
}

func TestLoadDependencyManifest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "deps.json")
	doc := map[string]interface{}{
		"targets": map[string]interface{}{
			"net8.0": []map[string]interface{}{
				{
					"name":              "Newtonsoft.Json",
					"version":           "13.0.3",
					"type":              "package",
					"runtime_dll_paths": []string{"/pkgs/newtonsoft/13.0.3/lib/Newtonsoft.Json.dll"},
				},
				{
					"name":              "SomeAnalyzerOnly",
					"version":           "1.0.0",
					"type":              "package",
					"runtime_dll_paths": []string{},
				},
			},
		},
	}
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	entries, err := LoadDependencyManifest(path)
	if err != nil {
		t.Fatalf("LoadDependencyManifest returned error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1 (the entry with no runtime DLLs should be skipped)", len(entries))
	}
	if entries[0].Name != "Newtonsoft.Json" {
		t.Errorf("entries[0].Name = %q, want Newtonsoft.Json", entries[0].Name)
	}
}

func TestLoadDependencyManifestEmptyPathIsNotAnError(t *testing.T) {
	entries, err := LoadDependencyManifest("")
	if err != nil || entries != nil {
		t.Errorf("LoadDependencyManifest(\"\") = (%v, %v), want (nil, nil)", entries, err)
	}
}
