package pip

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"depsweep/internal/config"
	"depsweep/internal/identity"
	"depsweep/internal/ingest"
	"depsweep/internal/testutil"
)

type stubRunner struct {
	result  ingest.CommandResult
	err     error
	gotSpec ingest.CommandSpec
}

func (s *stubRunner) Run(_ context.Context, spec ingest.CommandSpec) (ingest.CommandResult, error) {
	s.gotSpec = spec
	return s.result, s.err
}

func fakePython(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	return testutil.WriteExecutable(t, dir, "python3")
}

func TestFetchInstalledRecords(t *testing.T) {
	runner := &stubRunner{result: ingest.CommandResult{
		Stdout: testutil.ReadFixture(t, "pip_inspect.json"),
	}}
	adapter := New(config.EcosystemConfig{ToolPath: fakePython(t)}, runner, nil)

	result := adapter.FetchInstalledRecords(context.Background())

	if len(result.Errors) != 0 {
		t.Fatalf("Expected no errors, got %v", result.Errors)
	}
	if len(result.Records) != 7 {
		t.Fatalf("Expected 7 records, got %d", len(result.Records))
	}

	byKey := make(map[string]ingest.RawPackageRecord)
	for _, rec := range result.Records {
		byKey[rec.Identity.Ref().Key()] = rec
	}

	requests, ok := byKey["pip::requests"]
	if !ok {
		t.Fatal("Expected a record for requests")
	}
	if requests.Identity.Version.Value != "2.31.0" {
		t.Errorf("Expected version 2.31.0, got %s", requests.Identity.Version.Value)
	}
	if requests.InstallPath != "$PIP_BASE/requests-2.31.0.dist-info" {
		t.Errorf("Expected normalized install path, got %s", requests.InstallPath)
	}
	if len(requests.Identity.Fingerprint) != 16 {
		t.Errorf("Expected 16-char fingerprint, got %q", requests.Identity.Fingerprint)
	}
	if !requests.IsRequested {
		t.Error("Expected requests to be marked as requested")
	}
	if requests.License != "Apache 2.0" {
		t.Errorf("Expected license Apache 2.0, got %s", requests.License)
	}

	// The socks extra must not contribute an edge.
	if len(requests.Dependencies) != 4 {
		t.Fatalf("Expected 4 dependencies for requests, got %d", len(requests.Dependencies))
	}
	depConstraints := make(map[string]identity.VersionConstraint)
	for _, dep := range requests.Dependencies {
		depConstraints[dep.Name] = dep.Constraint
	}
	cn, ok := depConstraints["charset-normalizer"]
	if !ok {
		t.Fatalf("Expected charset_normalizer dependency under its canonical name, got %v", depConstraints)
	}
	if cn.Kind != identity.ConstraintRange || cn.Raw != "<4,>=2" {
		t.Errorf("Expected range constraint <4,>=2, got %+v", cn)
	}
	if _, ok := depConstraints["pysocks"]; ok {
		t.Error("Expected extra-gated PySocks to be skipped")
	}

	urllib3 := byKey["pip::urllib3"]
	if len(urllib3.Dependencies) != 0 {
		t.Errorf("Expected all urllib3 extras to be skipped, got %v", urllib3.Dependencies)
	}
	if urllib3.License != "MIT" {
		t.Errorf("Expected license_expression to win, got %s", urllib3.License)
	}
	if urllib3.IsRequested {
		t.Error("Expected urllib3 to be a non-requested dependency")
	}

	charset := byKey["pip::charset-normalizer"]
	if charset.License != "MIT License" {
		t.Errorf("Expected license body cut to its first line, got %q", charset.License)
	}

	yaml, ok := byKey["pip::pyyaml"]
	if !ok {
		t.Fatal("Expected PyYAML under its canonical name pip::pyyaml")
	}
	var meta Metadata
	if err := json.Unmarshal(yaml.Metadata, &meta); err != nil {
		t.Fatalf("Failed to decode metadata: %v", err)
	}
	if meta.ReportedName != "PyYAML" {
		t.Errorf("Expected reported name PyYAML, got %s", meta.ReportedName)
	}
	if meta.Installer != "pip" {
		t.Errorf("Expected installer pip, got %s", meta.Installer)
	}
	if meta.RequiresPython != ">=3.6" {
		t.Errorf("Expected requires_python >=3.6, got %s", meta.RequiresPython)
	}

	rich := byKey["pip::rich"]
	if len(rich.Dependencies) != 3 {
		t.Fatalf("Expected 3 dependencies for rich, got %d", len(rich.Dependencies))
	}
	richDeps := make(map[string]identity.VersionConstraint)
	for _, dep := range rich.Dependencies {
		richDeps[dep.Name] = dep.Constraint
	}
	// A python_version marker is not an extra and keeps the edge.
	te, ok := richDeps["typing-extensions"]
	if !ok {
		t.Fatal("Expected typing-extensions dependency to survive its environment marker")
	}
	if te.Raw != "<5.0,>=4.0.0" {
		t.Errorf("Expected constraint <5.0,>=4.0.0, got %s", te.Raw)
	}
}

func TestFetchInvocation(t *testing.T) {
	runner := &stubRunner{result: ingest.CommandResult{Stdout: []byte(`{"installed": []}`)}}
	adapter := New(config.EcosystemConfig{ToolPath: fakePython(t)}, runner, nil)

	adapter.FetchInstalledRecords(context.Background())

	wantArgs := []string{"-m", "pip", "inspect", "--local"}
	if len(runner.gotSpec.Args) != len(wantArgs) {
		t.Fatalf("Expected args %v, got %v", wantArgs, runner.gotSpec.Args)
	}
	for i, arg := range wantArgs {
		if runner.gotSpec.Args[i] != arg {
			t.Errorf("Expected arg %d to be %s, got %s", i, arg, runner.gotSpec.Args[i])
		}
	}
	if runner.gotSpec.Env["PIP_DISABLE_PIP_VERSION_CHECK"] != "1" {
		t.Error("Expected version check suppression in env")
	}
	if runner.gotSpec.Env["PIP_NO_INPUT"] != "1" {
		t.Error("Expected non-interactive pip env")
	}
	if runner.gotSpec.Timeout != DefaultTimeout {
		t.Errorf("Expected default timeout %s, got %s", DefaultTimeout, runner.gotSpec.Timeout)
	}
}

func TestTimeoutOverride(t *testing.T) {
	runner := &stubRunner{result: ingest.CommandResult{Stdout: []byte(`{"installed": []}`)}}
	adapter := New(config.EcosystemConfig{ToolPath: fakePython(t), TimeoutMs: 5000}, runner, nil)

	adapter.FetchInstalledRecords(context.Background())

	if runner.gotSpec.Timeout != 5*time.Second {
		t.Errorf("Expected 5s timeout, got %s", runner.gotSpec.Timeout)
	}
}

func TestMissingInterpreter(t *testing.T) {
	adapter := New(config.EcosystemConfig{ToolPath: "/nonexistent/python3"}, &stubRunner{}, nil)

	result := adapter.FetchInstalledRecords(context.Background())

	if len(result.Records) != 0 {
		t.Errorf("Expected no records, got %d", len(result.Records))
	}
	if len(result.Errors) != 1 {
		t.Fatalf("Expected one error, got %v", result.Errors)
	}
	if result.Errors[0].Phase != ingest.PhaseExecute {
		t.Errorf("Expected execute phase, got %s", result.Errors[0].Phase)
	}
	if !result.Errors[0].Recoverable {
		t.Error("Expected a recoverable error")
	}
}

func TestInspectTimeout(t *testing.T) {
	runner := &stubRunner{result: ingest.CommandResult{TimedOut: true, ExitCode: -1}}
	adapter := New(config.EcosystemConfig{ToolPath: fakePython(t)}, runner, nil)

	result := adapter.FetchInstalledRecords(context.Background())

	if len(result.Errors) != 1 {
		t.Fatalf("Expected one error, got %v", result.Errors)
	}
	if !strings.Contains(result.Errors[0].Message, "timed out") {
		t.Errorf("Expected timeout message, got %s", result.Errors[0].Message)
	}
}

func TestInspectFailure(t *testing.T) {
	runner := &stubRunner{result: ingest.CommandResult{
		ExitCode: 1,
		Stderr:   "ERROR: unknown command \"inspect\"\nhint: pip >= 22.2 required",
	}}
	adapter := New(config.EcosystemConfig{ToolPath: fakePython(t)}, runner, nil)

	result := adapter.FetchInstalledRecords(context.Background())

	if len(result.Errors) != 1 {
		t.Fatalf("Expected one error, got %v", result.Errors)
	}
	msg := result.Errors[0].Message
	if !strings.Contains(msg, "exited with code 1") {
		t.Errorf("Expected exit code in message, got %s", msg)
	}
	if !strings.Contains(msg, "unknown command") {
		t.Errorf("Expected first stderr line in message, got %s", msg)
	}
	if strings.Contains(msg, "hint:") {
		t.Errorf("Expected only the first stderr line, got %s", msg)
	}
}

func TestMalformedOutput(t *testing.T) {
	runner := &stubRunner{result: ingest.CommandResult{Stdout: []byte("Traceback (most recent call last):")}}
	adapter := New(config.EcosystemConfig{ToolPath: fakePython(t)}, runner, nil)

	result := adapter.FetchInstalledRecords(context.Background())

	if len(result.Records) != 0 {
		t.Errorf("Expected no records, got %d", len(result.Records))
	}
	if len(result.Errors) != 1 || result.Errors[0].Phase != ingest.PhaseParse {
		t.Fatalf("Expected one parse error, got %v", result.Errors)
	}
}

func TestNamelessDistributionSkipped(t *testing.T) {
	doc := `{
		"installed": [
			{"metadata": {"version": "1.0"}, "metadata_location": "/x/site-packages/broken-1.0.dist-info"},
			{"metadata": {"name": "ok", "version": "2.0"}, "metadata_location": "/x/site-packages/ok-2.0.dist-info", "requested": true}
		]
	}`
	runner := &stubRunner{result: ingest.CommandResult{Stdout: []byte(doc)}}
	adapter := New(config.EcosystemConfig{ToolPath: fakePython(t)}, runner, nil)

	result := adapter.FetchInstalledRecords(context.Background())

	if len(result.Records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(result.Records))
	}
	if result.Records[0].Identity.Name != "ok" {
		t.Errorf("Expected the valid record to survive, got %s", result.Records[0].Identity.Name)
	}
	if len(result.Errors) != 1 || result.Errors[0].Phase != ingest.PhaseParse {
		t.Fatalf("Expected one parse error, got %v", result.Errors)
	}
}

func TestParseRequirement(t *testing.T) {
	tests := []struct {
		spec           string
		wantName       string
		wantConstraint string
		wantExtraOnly  bool
	}{
		{"idna (<4,>=2.5)", "idna", "<4,>=2.5", false},
		{"certifi (>=2017.4.17)", "certifi", ">=2017.4.17", false},
		{"markdown-it-py>=2.2.0", "markdown-it-py", ">=2.2.0", false},
		{"pygments<3.0.0,>=2.13.0", "pygments", "<3.0.0,>=2.13.0", false},
		{"PySocks (!=1.5.7,>=1.5.6) ; extra == 'socks'", "PySocks", "!=1.5.7,>=1.5.6", true},
		{"zstandard>=0.18.0; extra == 'zstd'", "zstandard", ">=0.18.0", true},
		{"typing-extensions<5.0,>=4.0.0; python_version < '3.11'", "typing-extensions", "<5.0,>=4.0.0", false},
		{"requests[socks] (>=2.0)", "requests", ">=2.0", false},
		{"flask", "flask", "", false},
		{"", "", "", false},
	}

	for _, tt := range tests {
		name, constraint, extraOnly := parseRequirement(tt.spec)
		if name != tt.wantName {
			t.Errorf("parseRequirement(%q) name: expected %q, got %q", tt.spec, tt.wantName, name)
		}
		if constraint != tt.wantConstraint {
			t.Errorf("parseRequirement(%q) constraint: expected %q, got %q", tt.spec, tt.wantConstraint, constraint)
		}
		if extraOnly != tt.wantExtraOnly {
			t.Errorf("parseRequirement(%q) extraOnly: expected %v, got %v", tt.spec, tt.wantExtraOnly, extraOnly)
		}
	}
}

func TestCanonicalName(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"requests", "requests"},
		{"PyYAML", "pyyaml"},
		{"charset_normalizer", "charset-normalizer"},
		{"zope.interface", "zope-interface"},
		{"Flask--RESTful", "flask-restful"},
		{"  typing_extensions  ", "typing-extensions"},
	}

	for _, tt := range tests {
		if got := canonicalName(tt.raw); got != tt.want {
			t.Errorf("canonicalName(%q): expected %q, got %q", tt.raw, tt.want, got)
		}
	}
}

func TestEcosystem(t *testing.T) {
	adapter := New(config.EcosystemConfig{}, &stubRunner{}, nil)
	if adapter.Ecosystem() != identity.EcosystemPip {
		t.Errorf("Expected pip ecosystem, got %s", adapter.Ecosystem())
	}
}
