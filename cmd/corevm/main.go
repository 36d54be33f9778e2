// Command corevm is the embedding/CLI surface over the runtime core: create
// an isolate, register and finalize a small built-in class hierarchy, and
// either run a scripted walkthrough of the object model or drop into an
// interactive shell that pokes at it one command at a time.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"github.com/urfave/cli/v3"

	"github.com/coreruntime/vmcore/classes"
	"github.com/coreruntime/vmcore/dispatch"
	"github.com/coreruntime/vmcore/isolate"
	"github.com/coreruntime/vmcore/symbols"
)

const version = "0.1.0"

func main() {
	app := &cli.Command{
		Name:    "corevm",
		Usage:   "managed object model and runtime-call pipeline demo",
		Version: version,
		Commands: []*cli.Command{
			demoCommand,
			replCommand,
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cli.ShowAppHelp(cmd)
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "corevm: %v\n", err)
		os.Exit(1)
	}
}

var demoCommand = &cli.Command{
	Name:  "demo",
	Usage: "bootstrap an isolate, finalize a class hierarchy, and exercise the dispatch pipeline",
	Action: func(ctx context.Context, cmd *cli.Command) error {
		iso, shapes, err := bootstrapShapes()
		if err != nil {
			return err
		}
		d := dispatch.New(iso)

		circle := shapes["Circle"]
		obj, err := d.AllocateObject(circle)
		if err != nil {
			return fmt.Errorf("allocating Circle: %w", err)
		}
		fmt.Printf("allocated %s instance with %d field slots\n", circle.Name.Text(), len(obj.Fields))

		shapeType := &classes.ParameterizedType{Class: shapes["Shape"]}
		fmt.Printf("instanceof Shape: %v\n", d.Instanceof(obj, shapeType, nil))

		for i := 0; i < 10001; i++ {
			d.OptimizeInvokedFunction(circle.Functions[0])
		}
		fmt.Printf("area() invocation counter after warmup: %d\n", circle.Functions[0].InvocationCounter)
		return nil
	},
}

var replCommand = &cli.Command{
	Name:  "repl",
	Usage: "interactive shell over a freshly bootstrapped isolate",
	Action: func(ctx context.Context, cmd *cli.Command) error {
		iso, shapes, err := bootstrapShapes()
		if err != nil {
			return err
		}
		d := dispatch.New(iso)

		rl, err := readline.NewEx(&readline.Config{
			Prompt:      "corevm> ",
			HistoryFile: "",
		})
		if err != nil {
			return fmt.Errorf("starting shell: %w", err)
		}
		defer rl.Close()

		fmt.Println("corevm repl. commands: new <Class>, instanceof <Class>, stats, quit")
		var last *classes.Class
		for {
			line, err := rl.Readline()
			if err == readline.ErrInterrupt || err == io.EOF {
				return nil
			}
			if err != nil {
				return err
			}
			fields := strings.Fields(line)
			if len(fields) == 0 {
				continue
			}
			switch fields[0] {
			case "quit", "exit":
				return nil
			case "new":
				if len(fields) != 2 {
					fmt.Println("usage: new <Class>")
					continue
				}
				class, ok := shapes[fields[1]]
				if !ok {
					fmt.Printf("unknown class %s\n", fields[1])
					continue
				}
				obj, err := d.AllocateObject(class)
				if err != nil {
					fmt.Println("error:", err)
					continue
				}
				last = class
				fmt.Printf("allocated %s with %d fields\n", class.Name.Text(), len(obj.Fields))
			case "instanceof":
				if len(fields) != 2 || last == nil {
					fmt.Println("usage: new <Class> first, then instanceof <Class>")
					continue
				}
				target, ok := shapes[fields[1]]
				if !ok {
					fmt.Printf("unknown class %s\n", fields[1])
					continue
				}
				fmt.Println(classes.IsMoreSpecificThan(&classes.ParameterizedType{Class: last}, &classes.ParameterizedType{Class: target}))
			case "stats":
				fmt.Printf("isolate %s: %d classes finalized\n", iso.ID, len(shapes))
			default:
				fmt.Println("unknown command:", fields[0])
			}
		}
	},
}

// bootstrapShapes registers a tiny Shape/Circle/Square hierarchy against a
// fresh isolate and finalizes it, returning the classes keyed by name for
// the demo/repl commands to allocate against.
func bootstrapShapes() (*isolate.Isolate, map[string]*classes.Class, error) {
	iso := isolate.New()
	lib := symbols.NewLibrary(iso.Symbols().NewSymbol("corevm:shapes"), iso.Symbols().NewSymbol("shapes"))
	if err := iso.Libraries().Add(lib); err != nil {
		return nil, nil, err
	}

	shape := classes.NewClass(iso.Symbols().NewSymbol("Shape"), lib)
	shape.IsInterface = true
	area := &classes.Function{Name: iso.Symbols().NewSymbol("area"), Owner: shape, Kind: classes.KindAbstract}
	shape.Functions = append(shape.Functions, area)

	circle := classes.NewClass(iso.Symbols().NewSymbol("Circle"), lib)
	circle.Interfaces = append(circle.Interfaces, shape.Name)
	circle.Fields = append(circle.Fields, &classes.Field{Name: iso.Symbols().NewSymbol("radius")})
	circleArea := &classes.Function{Name: iso.Symbols().NewSymbol("area"), Owner: circle, Kind: classes.KindFunction}
	circle.Functions = append(circle.Functions, circleArea)

	square := classes.NewClass(iso.Symbols().NewSymbol("Square"), lib)
	square.Interfaces = append(square.Interfaces, shape.Name)
	square.Fields = append(square.Fields, &classes.Field{Name: iso.Symbols().NewSymbol("side")})
	squareArea := &classes.Function{Name: iso.Symbols().NewSymbol("area"), Owner: square, Kind: classes.KindFunction}
	square.Functions = append(square.Functions, squareArea)

	for _, c := range []*classes.Class{shape, circle, square} {
		lib.Register(symbols.EntryClass, c.Name, c)
		iso.EnqueuePendingClass(c)
	}
	if err := iso.FinalizeAll(); err != nil {
		return nil, nil, fmt.Errorf("finalizing shapes: %w", err)
	}

	return iso, map[string]*classes.Class{"Shape": shape, "Circle": circle, "Square": square}, nil
}
