// Command mondosh is an interactive shell for a mondo server. It speaks the
// same RPC surface the SDK does: every line is either a shell builtin or a
// raw method call with JSON arguments.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/peterh/liner"

	"github.com/mondo-io/mondo"
)

const historyFile = ".mondosh_history"

func main() {
	uri := flag.String("uri", "http://localhost:8080", "server URI")
	apiKey := flag.String("api-key", os.Getenv("MONDO_API_KEY"), "bearer token")
	timeout := flag.Duration("timeout", 30*time.Second, "per-request timeout")
	flag.Parse()

	ctx := context.Background()
	opts := (&mondo.ClientOptions{}).SetAPIKey(*apiKey).SetTimeout(*timeout)
	client, err := mondo.Connect(ctx, *uri, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mondosh: %v\n", err)
		os.Exit(1)
	}
	defer client.Disconnect(ctx)

	sh := &shell{client: client, db: "test", timeout: *timeout}
	if err := sh.run(); err != nil {
		fmt.Fprintf(os.Stderr, "mondosh: %v\n", err)
		os.Exit(1)
	}
}

type shell struct {
	client  *mondo.Client
	db      string
	timeout time.Duration
}

func (s *shell) run() error {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)
	line.SetMultiLineMode(true)
	s.loadHistory(line)
	defer s.saveHistory(line)

	fmt.Printf("mondosh connected, using database %q\n", s.db)
	for {
		input, err := line.Prompt(s.db + "> ")
		if err == liner.ErrPromptAborted {
			continue
		}
		if err != nil {
			// io.EOF on ctrl-D
			fmt.Println()
			return nil
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)
		if input == "exit" || input == "quit" {
			return nil
		}
		if err := s.eval(input); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	}
}

func (s *shell) eval(input string) error {
	fields := strings.Fields(input)
	cmd := fields[0]

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	switch cmd {
	case "help":
		s.printHelp()
		return nil
	case "use":
		if len(fields) < 2 {
			return fmt.Errorf("usage: use <database>")
		}
		s.db = fields[1]
		fmt.Printf("switched to db %s\n", s.db)
		return nil
	case "show":
		if len(fields) < 2 {
			return fmt.Errorf("usage: show dbs|collections")
		}
		return s.show(ctx, fields[1])
	default:
		return s.rawCall(ctx, input)
	}
}

func (s *shell) show(ctx context.Context, what string) error {
	var names []string
	var err error
	switch what {
	case "dbs", "databases":
		names, err = s.client.ListDatabaseNames(ctx)
	case "collections":
		names, err = s.client.Database(s.db).ListCollectionNames(ctx)
	default:
		return fmt.Errorf("unknown show target %q", what)
	}
	if err != nil {
		return err
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Println(n)
	}
	return nil
}

// rawCall parses "method [args...]" and sends it through the client
// transport. Method names may omit the mongo. prefix. Namespace methods get
// the current database and the named collection prepended, so
// "find users {}" works the way the SDK call would; database-scoped methods
// such as runCommand get just the current database.
func (s *shell) rawCall(ctx context.Context, input string) error {
	method, rest, _ := strings.Cut(input, " ")
	if !strings.Contains(method, ".") {
		method = "mongo." + method
	}

	args, err := parseArgs(rest)
	if err != nil {
		return err
	}
	switch argShape(method) {
	case shapeNamespace:
		if len(args) < 1 {
			return fmt.Errorf("%s requires a collection name", method)
		}
		coll, ok := args[0].(string)
		if !ok {
			return fmt.Errorf("%s: first argument must be a collection name", method)
		}
		args = append([]any{s.db, coll}, args[1:]...)
	case shapeDatabase:
		args = append([]any{s.db}, args...)
	}

	result, err := s.client.Call(ctx, method, args...)
	if err != nil {
		return err
	}
	return printResult(result)
}

// parseArgs splits the argument text into values. Anything that starts like
// JSON is decoded as JSON; bare words pass through as strings, so collection
// and field names do not need quoting.
func parseArgs(rest string) ([]any, error) {
	var args []any
	for {
		rest = strings.TrimLeft(rest, " \t")
		if rest == "" {
			return args, nil
		}
		if strings.ContainsRune(`{["`, rune(rest[0])) {
			dec := json.NewDecoder(strings.NewReader(rest))
			var v any
			if err := dec.Decode(&v); err != nil {
				return nil, fmt.Errorf("bad argument near %q: %v", rest, err)
			}
			args = append(args, v)
			rest = rest[dec.InputOffset():]
			continue
		}
		word := rest
		if i := strings.IndexAny(rest, " \t"); i >= 0 {
			word, rest = rest[:i], rest[i:]
		} else {
			rest = ""
		}
		var v any
		if err := json.Unmarshal([]byte(word), &v); err == nil {
			args = append(args, v)
		} else {
			args = append(args, word)
		}
	}
}

type shape int

const (
	shapeNone shape = iota
	shapeDatabase
	shapeNamespace
)

func argShape(method string) shape {
	switch strings.TrimPrefix(method, "mongo.") {
	case "ping", "serverStatus", "listDatabases", "getMore", "killCursors":
		return shapeNone
	case "listCollections", "dropDatabase", "runCommand":
		return shapeDatabase
	}
	return shapeNamespace
}

func printResult(result any) error {
	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func (s *shell) printHelp() {
	fmt.Print(`builtins:
  use <db>             switch the current database
  show dbs             list databases
  show collections     list collections in the current database
  help                 this text
  exit                 leave the shell

everything else is sent as an RPC call:
  <method> <collection> [json args...]
examples:
  insertOne users {"name":"ada","age":36}
  find users {"age":{"$gte":30}} {"sort":{"age":-1}}
  countDocuments users {}
  aggregate users [{"$group":{"_id":"$team","n":{"$sum":1}}}]
  runCommand {"ping":1}
`)
}

func (s *shell) loadHistory(line *liner.State) {
	path := s.historyPath()
	if path == "" {
		return
	}
	if f, err := os.Open(path); err == nil {
		_, _ = line.ReadHistory(f)
		f.Close()
	}
}

func (s *shell) saveHistory(line *liner.State) {
	path := s.historyPath()
	if path == "" {
		return
	}
	f, err := os.Create(path)
	if err != nil {
		return
	}
	defer f.Close()
	_, _ = line.WriteHistory(f)
}

func (s *shell) historyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, historyFile)
}
