package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/ergochat/readline"
	"github.com/joho/godotenv"

	klypt "github.com/a7m-1st/klypt-sub002"
	"github.com/a7m-1st/klypt-sub002/utils"
)

var completer = readline.NewPrefixCompleter(
	readline.PcItem("help"),
	readline.PcItem("classes"),
	readline.PcItem("show"),
	readline.PcItem("create"),
	readline.PcItem("join"),
	readline.PcItem("export"),
	readline.PcItem("import"),
	readline.PcItem("gradebook"),
	readline.PcItem("delete"),
	readline.PcItem("exit"),
	readline.PcItem("quit"),
)

func filterInput(r rune) (rune, bool) {
	switch r {
	// block CtrlZ feature
	case readline.CharCtrlZ:
		return r, false
	}
	return r, true
}

const usage = `commands:
  classes                              list stored classes
  show <code>                          class details and its klyps
  create <code> <educatorId> <title>   create-or-merge a class as educator
  join <code> <studentId>              enroll a student by code
  export <code> <file>                 write the shareable JSON
  import <file> [overwrite]            staged, duplicate-aware import
  gradebook <code> <file.xlsx>         submitted scores per student/klyp
  delete <code> [cascade]              remove a class, optionally its klyps+attempts
  exit`

func logLevel() slog.Level {
	switch strings.ToLower(os.Getenv("KLYPT_LOG")) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func main() {
	_ = godotenv.Load()

	dir := os.Getenv("KLYPT_DIR")
	if len(os.Args) > 1 {
		dir = os.Args[1]
	}
	if dir == "" {
		_, _ = fmt.Fprintln(os.Stderr, "usage: klypt <store-dir>  (or set KLYPT_DIR)")
		os.Exit(2)
	}

	k, err := klypt.Open(dir, klypt.Options{
		Logger: utils.NewDefaultLogger(logLevel()),
	})
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}

	l, err := readline.NewEx(&readline.Config{
		Prompt:              "klypt> ",
		HistoryFile:         "/tmp/klypt_history.tmp",
		AutoComplete:        completer,
		InterruptPrompt:     "^C",
		EOFPrompt:           "exit",
		HistorySearchFold:   true,
		FuncFilterInputRune: filterInput,
	})
	if err != nil {
		panic(err)
	}
	defer l.Close()
	l.CaptureExitSignal()

	ctx := context.Background()
	for {
		line, err := l.Readline()
		if err == readline.ErrInterrupt {
			if len(line) == 0 {
				break
			}
			continue
		} else if err == io.EOF {
			break
		}

		args := strings.Fields(strings.TrimSpace(line))
		if len(args) == 0 {
			continue
		}
		cmd := args[0]
		args = args[1:]
		err = nil
		switch cmd {
		case "help":
			fmt.Println(usage)
		case "exit", "quit":
			ex := 0
			if err := k.Close(); err != nil {
				_, _ = fmt.Fprintln(os.Stderr, err.Error())
				ex = 1
			}
			os.Exit(ex)
		case "classes":
			err = listClasses(ctx, k)
		case "show":
			err = withArgs(args, 1, func() error { return showClass(ctx, k, args[0]) })
		case "create":
			err = withArgs(args, 3, func() error {
				return createClass(ctx, k, args[0], args[1], strings.Join(args[2:], " "))
			})
		case "join":
			err = withArgs(args, 2, func() error { return joinClass(ctx, k, args[0], args[1]) })
		case "export":
			err = withArgs(args, 2, func() error { return exportClass(ctx, k, args[0], args[1]) })
		case "import":
			err = withArgs(args, 1, func() error {
				overwrite := len(args) > 1 && args[1] == "overwrite"
				return importClass(ctx, k, args[0], overwrite)
			})
		case "gradebook":
			err = withArgs(args, 2, func() error { return exportGradebook(ctx, k, args[0], args[1]) })
		case "delete":
			err = withArgs(args, 1, func() error {
				cascade := len(args) > 1 && args[1] == "cascade"
				return deleteClass(ctx, k, args[0], cascade)
			})
		default:
			_, _ = fmt.Fprintf(os.Stderr, "command unknown: %s\n", cmd)
		}

		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Error executing %s: %s\n", cmd, err.Error())
		}
	}
}

func withArgs(args []string, n int, fn func() error) error {
	if len(args) < n {
		return fmt.Errorf("expected at least %d argument(s), see help", n)
	}
	return fn()
}

func listClasses(ctx context.Context, k *klypt.Klypt) error {
	classes, err := k.Classes().All(ctx)
	if err != nil {
		return err
	}
	for _, c := range classes {
		fmt.Printf("%s\t%s\t%d students\t%s\n", c.ClassCode, c.ClassTitle, len(c.StudentIDs), c.ID)
	}
	fmt.Printf("%d class(es)\n", len(classes))
	return nil
}

func showClass(ctx context.Context, k *klypt.Klypt, code string) error {
	class, err := k.Reconciler().ClassByCode(ctx, code)
	if err != nil {
		return err
	}
	fmt.Printf("%s %q educator=%s students=%v\n", class.ClassCode, class.ClassTitle, class.EducatorID, class.StudentIDs)
	klyps, err := k.Klyps().QueryBy(ctx, []string{"classCode"}, []string{code})
	if err != nil {
		return err
	}
	for _, klyp := range klyps {
		fmt.Printf("  %s %q (%d questions)\n", klyp.ID, klyp.Title, len(klyp.Questions))
	}
	return nil
}

func createClass(ctx context.Context, k *klypt.Klypt, code, educatorID, title string) error {
	res, err := k.Reconciler().Reconcile(ctx, klypt.ReconcileRequest{
		ClassCode:   code,
		ClassName:   title,
		ActorID:     educatorID,
		Role:        klypt.RoleEducator,
		CreatorFlow: true,
	})
	if err != nil {
		return err
	}
	verb := "merged"
	if res.Created {
		verb = "created"
	}
	fmt.Printf("%s class %s (%s)\n", verb, res.Class.ClassCode, res.Class.ID)
	return nil
}

func joinClass(ctx context.Context, k *klypt.Klypt, code, studentID string) error {
	res, err := k.Reconciler().Reconcile(ctx, klypt.ReconcileRequest{
		ClassCode: code,
		ActorID:   studentID,
		Role:      klypt.RoleStudent,
	})
	if err != nil {
		return err
	}
	fmt.Printf("joined %s, roster %v\n", res.Class.ClassCode, res.Class.StudentIDs)
	return nil
}

func exportClass(ctx context.Context, k *klypt.Klypt, code, path string) error {
	body, err := k.Exchange().Export(ctx, code)
	if err != nil {
		return err
	}
	return os.WriteFile(path, body, 0o644)
}

func importClass(ctx context.Context, k *klypt.Klypt, path string, overwrite bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	plan, err := k.Exchange().StageImport(ctx, data)
	if err != nil {
		return err
	}
	if plan.Duplicate() && !overwrite {
		code, title := plan.Existing()
		fmt.Printf("class %q (%s) already exists; rerun with 'overwrite' to replace it\n", title, code)
		return nil
	}
	res, err := plan.Apply(ctx, overwrite)
	if err != nil {
		return err
	}
	fmt.Printf("imported %s %q with %d klyp(s)\n", res.ClassCode, res.ClassTitle, res.KlypCount)
	return nil
}

func exportGradebook(ctx context.Context, k *klypt.Klypt, code, path string) error {
	f, err := k.ExportGradebook(ctx, code)
	if err != nil {
		return err
	}
	return f.SaveAs(path)
}

func deleteClass(ctx context.Context, k *klypt.Klypt, code string, cascade bool) error {
	ok, err := k.DeleteClass(ctx, code, cascade)
	if err != nil {
		return err
	}
	fmt.Printf("deleted=%v cascade=%v\n", ok, cascade)
	return nil
}
