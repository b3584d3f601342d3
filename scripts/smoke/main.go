package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

type target struct {
	Name     string          `json:"name"`
	Method   string          `json:"method"`
	Path     string          `json:"path"`
	Auth     bool            `json:"auth"`
	Body     json.RawMessage `json:"body,omitempty"`
	Expect   int             `json:"expect"`
	Critical bool            `json:"critical"`
	// Dotted keys that must be present in the response envelope.
	Require []string `json:"require,omitempty"`
}

type config struct {
	Targets []target `json:"targets"`
}

type result struct {
	Target   target
	Status   int
	Missing  []string
	Error    error
	Duration time.Duration
}

func (r result) ok() bool {
	return r.Error == nil && r.Status == r.Target.Expect && len(r.Missing) == 0
}

func main() {
	var (
		base        string
		token       string
		targetsPath string
		timeout     time.Duration
	)

	flag.StringVar(&base, "base", "http://localhost:8080/api", "API base URL including the prefix")
	flag.StringVar(&token, "token", os.Getenv("GURUKUL_TOKEN"), "Bearer token for targets marked auth")
	flag.StringVar(&targetsPath, "targets", filepath.Join("scripts", "smoke", "targets.json"), "Path to JSON targets file")
	flag.DurationVar(&timeout, "timeout", 5*time.Second, "HTTP client timeout")
	flag.Parse()

	targets, err := loadTargets(targetsPath)
	if err != nil {
		log.Fatalf("failed to load targets: %v", err)
	}

	client := resty.New().SetBaseURL(strings.TrimRight(base, "/")).SetTimeout(timeout)
	results := make([]result, 0, len(targets))
	failures := 0
	for _, t := range targets {
		res := checkTarget(client, token, t)
		if !res.ok() && t.Critical {
			failures++
		}
		results = append(results, res)
	}

	printReport(os.Stdout, results)
	fmt.Printf("Critical failures: %d\n", failures)
	if failures > 0 {
		os.Exit(1)
	}
}

func loadTargets(path string) ([]target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if len(cfg.Targets) == 0 {
		return nil, fmt.Errorf("no targets defined in %s", path)
	}
	for i := range cfg.Targets {
		if cfg.Targets[i].Expect == 0 {
			cfg.Targets[i].Expect = http.StatusOK
		}
	}
	return cfg.Targets, nil
}

func checkTarget(client *resty.Client, token string, tgt target) result {
	res := result{Target: tgt}
	if client == nil {
		res.Error = errors.New("nil client")
		return res
	}
	method := strings.ToUpper(strings.TrimSpace(tgt.Method))
	if method == "" {
		method = http.MethodGet
	}
	path := tgt.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	req := client.R().SetHeader("Accept", "application/json")
	if tgt.Auth {
		if token == "" {
			res.Error = errors.New("target needs a token; pass -token")
			return res
		}
		req.SetAuthToken(token)
	}
	if len(tgt.Body) > 0 {
		req.SetHeader("Content-Type", "application/json").SetBody([]byte(tgt.Body))
	}

	start := time.Now()
	resp, err := req.Execute(method, path)
	res.Duration = time.Since(start)
	if err != nil {
		res.Error = err
		return res
	}
	res.Status = resp.StatusCode()

	if len(tgt.Require) > 0 {
		var body map[string]interface{}
		if err := json.Unmarshal(resp.Body(), &body); err != nil {
			res.Error = fmt.Errorf("decode body: %w", err)
			return res
		}
		for _, key := range tgt.Require {
			if !hasPath(body, key) {
				res.Missing = append(res.Missing, key)
			}
		}
	}
	return res
}

func hasPath(v interface{}, dotted string) bool {
	cur := v
	for _, key := range strings.Split(dotted, ".") {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return false
		}
		if cur, ok = m[key]; !ok {
			return false
		}
	}
	return true
}

func printReport(w io.Writer, results []result) {
	fmt.Fprintln(w, "Smoke Report")
	fmt.Fprintln(w, "============")
	for _, res := range results {
		status := "OK"
		switch {
		case res.Error != nil:
			status = "ERROR"
		case !res.ok():
			status = "FAIL"
		}
		name := res.Target.Name
		if name == "" {
			name = res.Target.Method + " " + res.Target.Path
		}
		fmt.Fprintf(w, "[%s] %s\n", status, name)
		fmt.Fprintf(w, "  Status: %d (want %d, %s)\n", res.Status, res.Target.Expect, res.Duration)
		if res.Error != nil {
			fmt.Fprintf(w, "  Error: %v\n", res.Error)
		}
		if len(res.Missing) > 0 {
			fmt.Fprintf(w, "  Missing keys: %s\n", strings.Join(res.Missing, ", "))
		}
	}
}
