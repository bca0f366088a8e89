// Command testbin is a fixture program for testing the clidrive library. Its
// first argument selects a behavior:
//
//   - confirm: prints "Continue? ", and on Enter redraws the line as
//     "Continue? yes" behind erase/cursor escape sequences
//   - phone: prints "Phone number: ", and on Enter prints "You entered: <line>"
//   - menu: draws a coloured list (Small/Medium/Large) driven by Up/Down,
//     and on Enter prints "Pick a size <choice>"
//   - echo: prints "ready>" and echoes each line as "echo: <line>";
//     "quit" exits 0 and "fail" exits 1
//   - silent: prints nothing until a line arrives, then "got: <line>"
//   - delay MS TEXT: prints TEXT after MS milliseconds
//   - say TEXT: prints TEXT and exits 0 immediately
//   - exit CODE: exits with CODE without printing
//   - detach CODE: starts a copy of itself that keeps stdout and stderr open
//     for three seconds, and exits with CODE right away
//   - stderr: warns on stderr, prints "Proceed? ", and on Enter prints
//     "proceeding" on stdout and "done" on stderr
//   - ansi: prints "hello world" interleaved with escape sequences
//
// Except for say, exit and detach, the program then waits for stdin to
// close, so the session's kill signal is what ends it.
package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

var in = bufio.NewReader(os.Stdin)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: testbin MODE [ARGS...]")
		os.Exit(2)
	}

	args := os.Args[2:]
	switch os.Args[1] {
	case "confirm":
		confirm()
	case "phone":
		phone()
	case "menu":
		menu()
	case "echo":
		echo()
	case "silent":
		line, _ := readLine()
		fmt.Printf("got: %s\n", line)
	case "delay":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: testbin delay MS TEXT")
			os.Exit(2)
		}
		ms, err := strconv.Atoi(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: invalid delay %q\n", args[0])
			os.Exit(2)
		}
		time.Sleep(time.Duration(ms) * time.Millisecond)
		fmt.Print(strings.Join(args[1:], " "))
	case "say":
		fmt.Println(strings.Join(args, " "))
		os.Exit(0)
	case "exit":
		code := 0
		if len(args) > 0 {
			code, _ = strconv.Atoi(args[0])
		}
		os.Exit(code)
	case "detach":
		code := 0
		if len(args) > 0 {
			code, _ = strconv.Atoi(args[0])
		}
		child := exec.Command(os.Args[0], "delay", "3000", "late")
		child.Stdout = os.Stdout
		child.Stderr = os.Stderr
		if err := child.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(2)
		}
		os.Exit(code)
	case "stderr":
		fmt.Fprintln(os.Stderr, "warning: disk almost full")
		fmt.Print("Proceed? ")
		_, _ = readLine()
		fmt.Println("proceeding")
		fmt.Fprintln(os.Stderr, "done")
	case "ansi":
		fmt.Print("\x1b[2J\x1b[3;4Hhello\x1b[0m \x1b[1mworld\x1b[22m\n")
	default:
		fmt.Fprintf(os.Stderr, "error: unknown mode %q\n", os.Args[1])
		os.Exit(2)
	}

	_, _ = io.Copy(io.Discard, in)
}

// readLine reads up to a carriage return or newline, the way a raw-mode
// prompt library sees the Enter key.
func readLine() (string, error) {
	var b strings.Builder
	for {
		c, err := in.ReadByte()
		if err != nil {
			return b.String(), err
		}
		if c == '\r' || c == '\n' {
			return b.String(), nil
		}
		b.WriteByte(c)
	}
}

func confirm() {
	fmt.Print("Continue? ")
	if _, err := readLine(); err != nil {
		os.Exit(1)
	}
	fmt.Print("\x1b[2K\x1b[1GContinue? yes\n")
}

func phone() {
	fmt.Print("Phone number: ")
	line, err := readLine()
	if err != nil {
		os.Exit(1)
	}
	fmt.Printf("You entered: %s\n", line)
}

var sizes = []string{"Small", "Medium", "Large"}

func drawMenu(selected int) {
	for i, s := range sizes {
		if i == selected {
			fmt.Printf("\x1b[36m❯ %s\x1b[39m\n", s)
		} else {
			fmt.Printf("  %s\n", s)
		}
	}
}

func menu() {
	fmt.Println("? Pick a size (Use arrow keys)")
	selected := 0
	drawMenu(selected)

	for {
		c, err := in.ReadByte()
		if err != nil {
			os.Exit(1)
		}
		switch c {
		case '\r', '\n':
			fmt.Printf("\x1b[%dA\x1b[J", len(sizes)+1)
			fmt.Printf("? Pick a size \x1b[36m%s\x1b[39m\n", sizes[selected])
			return
		case 0x1b:
			seq := make([]byte, 2)
			if _, err := io.ReadFull(in, seq); err != nil {
				os.Exit(1)
			}
			switch {
			case seq[1] == 'A' && selected > 0:
				selected--
			case seq[1] == 'B' && selected < len(sizes)-1:
				selected++
			}
			fmt.Printf("\x1b[%dA\x1b[J", len(sizes))
			drawMenu(selected)
		}
	}
}

func echo() {
	fmt.Print("ready>")
	for {
		line, err := readLine()
		if err != nil {
			return
		}
		switch line {
		case "":
			continue
		case "quit":
			os.Exit(0)
		case "fail":
			os.Exit(1)
		}
		fmt.Printf("echo: %s\n", line)
		fmt.Print("ready>")
	}
}
