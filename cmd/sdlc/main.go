// Command sdlc is the CLI for the sdlcd daemon: it submits and manages
// tasks over the HTTP API, watches them until they settle, and runs
// streaming generations over the websocket channel.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/durdan/dd-sdlc-ai-sub004/internal/api"
	"github.com/durdan/dd-sdlc-ai-sub004/internal/progress"
	"github.com/durdan/dd-sdlc-ai-sub004/internal/version"
)

func main() {
	client := &http.Client{Timeout: 30 * time.Second}
	baseURL := fmt.Sprintf("http://%s:%d", api.DefaultHost, api.DefaultPort)
	if v := os.Getenv("SDLC_URL"); v != "" {
		baseURL = strings.TrimRight(v, "/")
	}
	os.Exit(run(os.Args[1:], client, baseURL, os.Stdout, os.Stderr))
}

func run(args []string, client *http.Client, baseURL string, out, errOut io.Writer) int {
	if len(args) < 1 {
		usage(errOut)
		return 2
	}

	switch args[0] {
	case "submit":
		return submit(args[1:], client, baseURL, out, errOut)
	case "status":
		return status(args[1:], client, baseURL, out, errOut)
	case "list":
		return list(args[1:], client, baseURL, out, errOut)
	case "watch":
		return watch(args[1:], client, baseURL, out, errOut)
	case "retry":
		return post(args[1:], client, baseURL, "retry", out, errOut)
	case "cancel":
		return post(args[1:], client, baseURL, "cancel", out, errOut)
	case "delete":
		return del(args[1:], client, baseURL, out, errOut)
	case "generate":
		return generate(args[1:], baseURL, out, errOut)
	case "version":
		fmt.Fprintf(out, "sdlc %s (%s)\n", version.Version, version.Commit)
		return 0
	default:
		usage(errOut)
		return 2
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage:")
	fmt.Fprintln(w, "  sdlc submit --user <id> --desc <text> --owner <owner> --repo <name> [--type <t>] [--priority <p>]")
	fmt.Fprintln(w, "  sdlc status [--json] <task-id>")
	fmt.Fprintln(w, "  sdlc list --user <id>")
	fmt.Fprintln(w, "  sdlc watch [--interval-ms <n>] <task-id>")
	fmt.Fprintln(w, "  sdlc retry <task-id>")
	fmt.Fprintln(w, "  sdlc cancel <task-id>")
	fmt.Fprintln(w, "  sdlc delete <task-id>")
	fmt.Fprintln(w, "  sdlc generate --input <text> [--target <type>]")
	fmt.Fprintln(w, "  sdlc version")
}

func submit(args []string, client *http.Client, baseURL string, out, errOut io.Writer) int {
	fs := flag.NewFlagSet("submit", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var req api.CreateTaskRequest
	var owner, name, branch, taskType, priority string
	fs.StringVar(&req.UserID, "user", "", "owning user id")
	fs.StringVar(&req.Description, "desc", "", "task description")
	fs.StringVar(&req.TaskID, "task-id", "", "optional task id")
	fs.StringVar(&owner, "owner", "", "repository owner")
	fs.StringVar(&name, "repo", "", "repository name")
	fs.StringVar(&branch, "branch", "", "repository branch")
	fs.StringVar(&taskType, "type", "", "task type (bug_fix, feature, review, refactoring, testing)")
	fs.StringVar(&priority, "priority", "", "priority (low, medium, high, urgent)")
	fs.StringVar(&req.Context, "context", "", "additional context")
	fs.StringVar(&req.Requirements, "requirements", "", "requirements")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if req.UserID == "" || req.Description == "" || owner == "" || name == "" {
		fs.Usage()
		return 2
	}
	req.Repository = api.Repository{Owner: owner, Name: name, Branch: branch}
	req.Type = api.TaskType(taskType)
	req.Priority = api.Priority(priority)

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(&req); err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	resp, err := client.Post(baseURL+"/v1/tasks", "application/json", &buf)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	return printBody(resp, out, errOut)
}

func status(args []string, client *http.Client, baseURL string, out, errOut io.Writer) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	fs.SetOutput(errOut)
	asJSON := fs.Bool("json", false, "raw JSON output")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		usage(errOut)
		return 2
	}

	resp, err := client.Get(baseURL + "/v1/tasks/" + fs.Arg(0))
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if resp.StatusCode >= 400 {
		fmt.Fprintf(errOut, "request failed: %s: %s\n", resp.Status, string(body))
		return 1
	}
	if *asJSON {
		fmt.Fprintln(out, string(body))
		return 0
	}

	var t api.Task
	if err := json.Unmarshal(body, &t); err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	printTask(out, &t)
	return 0
}

func printTask(out io.Writer, t *api.Task) {
	fmt.Fprintf(out, "%s  %s  %d%%  (%s, retries: %d)\n", t.ID, t.Status, t.Progress, t.Type, t.RetryCount)
	for i := range t.Steps {
		s := &t.Steps[i]
		marker := " "
		switch s.Status {
		case api.StepCompleted:
			marker = "x"
		case api.StepInProgress:
			marker = ">"
		case api.StepFailed:
			marker = "!"
		}
		fmt.Fprintf(out, "  [%s] %d. %s (%s)\n", marker, s.StepNumber, s.Title, s.Status)
		if s.Error != "" {
			fmt.Fprintf(out, "      error: %s\n", s.Error)
		}
	}
	if t.Result != nil && t.Result.Summary != "" {
		fmt.Fprintf(out, "  result: %s\n", t.Result.Summary)
	}
}

func list(args []string, client *http.Client, baseURL string, out, errOut io.Writer) int {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	fs.SetOutput(errOut)
	user := fs.String("user", "", "owning user id")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *user == "" {
		fs.Usage()
		return 2
	}
	resp, err := client.Get(baseURL + "/v1/tasks?user_id=" + *user)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	return printBody(resp, out, errOut)
}

// httpFetcher adapts the task snapshot endpoint to the poller.
type httpFetcher struct {
	client  *http.Client
	baseURL string
}

func (f *httpFetcher) Get(id string) (*api.Task, error) {
	resp, err := f.client.Get(f.baseURL + "/v1/tasks/" + id)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, errors.New("not found")
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("request failed: %s", resp.Status)
	}
	var t api.Task
	if err := json.NewDecoder(resp.Body).Decode(&t); err != nil {
		return nil, err
	}
	return &t, nil
}

func watch(args []string, client *http.Client, baseURL string, out, errOut io.Writer) int {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	fs.SetOutput(errOut)
	intervalMS := fs.Int("interval-ms", int(progress.DefaultInterval/time.Millisecond), "poll interval in milliseconds")
	maxPolls := fs.Int("max-polls", progress.DefaultMaxPolls, "give up after this many polls")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		usage(errOut)
		return 2
	}
	id := fs.Arg(0)

	poller := progress.NewPoller(
		&httpFetcher{client: client, baseURL: baseURL},
		time.Duration(*intervalMS)*time.Millisecond,
		*maxPolls,
	)
	snap, err := poller.Observe(context.Background(), id)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if snap.Reason == progress.StopExhausted {
		fmt.Fprintf(errOut, "task %s still %s after %d polls\n", id, snap.Status, snap.Polls)
		return 1
	}
	fmt.Fprintf(out, "%s  %s  %d%%\n", id, snap.Status, snap.Progress)
	if snap.Result != nil && snap.Result.Summary != "" {
		fmt.Fprintf(out, "  result: %s\n", snap.Result.Summary)
	}
	if snap.Status != api.TaskCompleted {
		return 1
	}
	return 0
}

func post(args []string, client *http.Client, baseURL, action string, out, errOut io.Writer) int {
	if len(args) != 1 {
		usage(errOut)
		return 2
	}
	resp, err := client.Post(baseURL+"/v1/tasks/"+args[0]+"/"+action, "application/json", nil)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	return printBody(resp, out, errOut)
}

func del(args []string, client *http.Client, baseURL string, out, errOut io.Writer) int {
	if len(args) != 1 {
		usage(errOut)
		return 2
	}
	req, err := http.NewRequest(http.MethodDelete, baseURL+"/v1/tasks/"+args[0], nil)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	resp, err := client.Do(req)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		fmt.Fprintf(errOut, "request failed: %s\n", resp.Status)
		return 1
	}
	fmt.Fprintln(out, "deleted")
	return 0
}

func generate(args []string, baseURL string, out, errOut io.Writer) int {
	fs := flag.NewFlagSet("generate", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var req api.GenerateRequest
	fs.StringVar(&req.Input, "input", "", "generation input")
	fs.StringVar(&req.TargetType, "target", "technical_spec", "target type (business_analysis, technical_spec, repository_analysis)")
	fs.StringVar(&req.PriorContext, "context", "", "prior context to build on")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if req.Input == "" {
		fs.Usage()
		return 2
	}

	wsURL := "ws" + strings.TrimPrefix(baseURL, "http") + "/v1/generate"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	defer conn.Close()

	if err := conn.WriteJSON(&req); err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}

	for {
		var ev api.StreamEvent
		if err := conn.ReadJSON(&ev); err != nil {
			fmt.Fprintf(errOut, "stream ended unexpectedly: %v\n", err)
			return 1
		}
		switch ev.Type {
		case api.EventProgress:
			fmt.Fprintf(errOut, "-- %s\n", ev.Phase)
		case api.EventContent:
			fmt.Fprint(out, ev.Content)
		case api.EventComplete:
			fmt.Fprintln(out)
			if ev.ShareURL != "" {
				fmt.Fprintf(errOut, "shared at %s%s\n", baseURL, ev.ShareURL)
			}
			return 0
		case api.EventError:
			fmt.Fprintf(errOut, "generation failed: %s\n", ev.Error)
			return 1
		}
	}
}

func printBody(resp *http.Response, out, errOut io.Writer) int {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if resp.StatusCode >= 400 {
		fmt.Fprintf(errOut, "request failed: %s: %s\n", resp.Status, string(body))
		return 1
	}
	fmt.Fprintln(out, strings.TrimRight(string(body), "\n"))
	return 0
}
