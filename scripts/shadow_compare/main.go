// Command shadow_compare replays a set of read endpoints against both
// the legacy forms plugin and this API and reports response drift.
// Critical endpoints that drift fail the run; the rest are informational.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"text/tabwriter"
	"time"
)

type endpoint struct {
	Method   string `json:"method"`
	Path     string `json:"path"`
	Critical bool   `json:"critical"`
}

type manifest struct {
	Targets []endpoint `json:"targets"`
}

type outcome struct {
	Endpoint       endpoint
	LegacyStatus   int
	GoStatus       int
	StatusMatch    bool
	BodyMatch      bool
	Err            error
	DurationGo     time.Duration
	DurationLegacy time.Duration
}

func (o outcome) drifted() bool {
	return o.Err != nil || !o.StatusMatch || !o.BodyMatch
}

func main() {
	var (
		goBase      string
		legacyBase  string
		targetsPath string
		authToken   string
		timeout     time.Duration
	)

	flag.StringVar(&goBase, "go-base", "http://localhost:8080/api/v1", "Go API base URL")
	flag.StringVar(&legacyBase, "legacy-base", "http://localhost:8000/forms/api", "Legacy forms plugin base URL")
	flag.StringVar(&targetsPath, "targets", filepath.Join("scripts", "shadow_compare", "targets.json"), "Path to JSON targets file")
	flag.StringVar(&authToken, "auth-token", "", "Bearer token sent to both APIs")
	flag.DurationVar(&timeout, "timeout", 5*time.Second, "HTTP client timeout")
	flag.Parse()

	endpoints, err := loadEndpoints(targetsPath)
	if err != nil {
		log.Fatalf("failed to load targets: %v", err)
	}

	client := &http.Client{Timeout: timeout}
	var (
		outcomes     []outcome
		breaking     int
		optionalDiff int
	)

	for _, ep := range endpoints {
		o := compare(client, goBase, legacyBase, authToken, ep)
		if o.drifted() {
			if ep.Critical {
				breaking++
			} else {
				optionalDiff++
			}
		}
		outcomes = append(outcomes, o)
	}

	report(outcomes)

	fmt.Printf("Breaking diffs: %d, Optional diffs: %d\n", breaking, optionalDiff)
	if breaking > 0 {
		os.Exit(1)
	}
}

func loadEndpoints(path string) ([]endpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	if len(m.Targets) == 0 {
		return nil, fmt.Errorf("no targets defined in %s", path)
	}
	return m.Targets, nil
}

func compare(client *http.Client, goBase, legacyBase, authToken string, ep endpoint) outcome {
	o := outcome{Endpoint: ep}

	goStatus, goBody, goDur, err := fetch(client, goBase, authToken, ep)
	if err != nil {
		o.Err = fmt.Errorf("go request failed: %w", err)
		return o
	}
	legacyStatus, legacyBody, legacyDur, err := fetch(client, legacyBase, authToken, ep)
	if err != nil {
		o.Err = fmt.Errorf("legacy request failed: %w", err)
		return o
	}

	o.GoStatus, o.LegacyStatus = goStatus, legacyStatus
	o.DurationGo, o.DurationLegacy = goDur, legacyDur
	o.StatusMatch = goStatus == legacyStatus
	o.BodyMatch = bodiesEqual(goBody, legacyBody)
	return o
}

func fetch(client *http.Client, base, authToken string, ep endpoint) (int, []byte, time.Duration, error) {
	method := strings.ToUpper(strings.TrimSpace(ep.Method))
	if method == "" {
		method = http.MethodGet
	}
	path := ep.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	req, err := http.NewRequest(method, strings.TrimRight(base, "/")+path, nil)
	if err != nil {
		return 0, nil, 0, err
	}
	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, 0, fmt.Errorf("read body: %w", err)
	}
	return resp.StatusCode, body, time.Since(start), nil
}

func bodiesEqual(a, b []byte) bool {
	if bytes.Equal(bytes.TrimSpace(a), bytes.TrimSpace(b)) {
		return true
	}

	var aj, bj interface{}
	if err := json.Unmarshal(a, &aj); err != nil {
		return false
	}
	if err := json.Unmarshal(b, &bj); err != nil {
		return false
	}
	normalize(&aj)
	normalize(&bj)
	return reflect.DeepEqual(aj, bj)
}

func normalize(v *interface{}) {
	switch val := (*v).(type) {
	case map[string]interface{}:
		// Timing and cache metadata differ run to run.
		delete(val, "processing_time_ms")
		delete(val, "cache_hit")
		for k, v2 := range val {
			normalize(&v2)
			val[k] = v2
		}
	case []interface{}:
		for i, v2 := range val {
			normalize(&v2)
			val[i] = v2
		}
	case float64:
		if val == float64(int64(val)) {
			*v = int64(val)
		}
	}
}

func report(outcomes []outcome) {
	fmt.Println("Shadow Compare Report")
	fmt.Println("======================")
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STATE\tENDPOINT\tGO\tLEGACY\tCRITICAL\tDETAIL")
	for _, o := range outcomes {
		state := "ok"
		detail := fmt.Sprintf("go %s, legacy %s", o.DurationGo, o.DurationLegacy)
		switch {
		case o.Err != nil:
			state = "error"
			detail = o.Err.Error()
		case o.drifted():
			state = "diff"
			detail = fmt.Sprintf("status match %t, body match %t", o.StatusMatch, o.BodyMatch)
		}
		fmt.Fprintf(w, "%s\t%s %s\t%d\t%d\t%t\t%s\n",
			state, o.Endpoint.Method, o.Endpoint.Path, o.GoStatus, o.LegacyStatus, o.Endpoint.Critical, detail)
	}
	w.Flush() //nolint:errcheck
}
