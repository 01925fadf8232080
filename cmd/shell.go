package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cansim/cansim/internal/bus"
	"github.com/cansim/cansim/internal/config"
	"github.com/cansim/cansim/internal/scenario"
	"github.com/cansim/cansim/internal/trace"
)

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Interactive bus shell",
	RunE:  runShell,
}

var exitCommands = map[string]bool{
	"exit":  true,
	"quit":  true,
	"/exit": true,
	"/quit": true,
	":q":    true,
}

const shellHelp = `Commands:
  attach <label>                    attach a node (created on first use)
  detach <label>                    detach a node
  tx <id> [hexbytes] [from <label>] broadcast a frame, optionally excluding a source
  nodes                             list nodes and attachment count
  last                              show the last transmitted frame
  reset                             drop all attachments
  help                              this text
  exit                              leave the shell`

// shell holds the REPL's caller-owned node storage. Nodes live for the whole
// session, which satisfies the bus's lifetime contract.
type shell struct {
	bus    *bus.Bus
	rec    *trace.Recorder
	nodes  map[string]*bus.Node
	nextID uint32
}

func runShell(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(config.ConfigPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	setupLogging(cfg.Verbose)

	sh := &shell{
		bus:    bus.New(),
		rec:    trace.NewRecorder(cfg.BusName),
		nodes:  make(map[string]*bus.Node),
		nextID: 1,
	}
	sh.rec.Subscribe(trace.SinkFunc(func(ev trace.Event) {
		fmt.Println("  " + sh.rec.Render(ev))
	}))

	fmt.Printf("cansim shell — bus %s, capacity %d nodes (type 'help' for commands)\n\n",
		cfg.BusName, bus.MaxNodes)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("cansim> ")

		if !scanner.Scan() {
			fmt.Println("\nGoodbye!")
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if exitCommands[line] {
			fmt.Println("Goodbye!")
			return nil
		}
		if err := sh.eval(line); err != nil {
			fmt.Printf("  error: %v\n", err)
		}
	}
}

func (sh *shell) eval(line string) error {
	fields := strings.Fields(line)
	switch fields[0] {
	case "help":
		fmt.Println(shellHelp)
		return nil

	case "attach":
		if len(fields) != 2 {
			return fmt.Errorf("usage: attach <label>")
		}
		return sh.bus.Attach(sh.node(fields[1]))

	case "detach":
		if len(fields) != 2 {
			return fmt.Errorf("usage: detach <label>")
		}
		n, ok := sh.nodes[fields[1]]
		if !ok {
			return fmt.Errorf("unknown node %q", fields[1])
		}
		return sh.bus.Detach(n)

	case "tx":
		return sh.transmit(fields[1:])

	case "nodes":
		if len(sh.nodes) == 0 {
			fmt.Println("  no nodes yet")
			return nil
		}
		for label, n := range sh.nodes {
			fmt.Printf("  %s (id %d)\n", label, n.ID)
		}
		fmt.Printf("  %d attached\n", sh.bus.Attached())
		return nil

	case "last":
		m := sh.bus.LastMessage()
		fmt.Printf("  id %03X  [%d]  % X\n", m.ID, m.Len, m.Data[:m.Len])
		return nil

	case "reset":
		return sh.bus.Reset()

	default:
		return fmt.Errorf("unknown command %q (try 'help')", fields[0])
	}
}

// node returns the caller-owned node for label, creating it on first use.
func (sh *shell) node(label string) *bus.Node {
	if n, ok := sh.nodes[label]; ok {
		return n
	}
	n := &bus.Node{
		ID: sh.nextID,
		OnReceive: func(n *bus.Node, m *bus.Message) {
			sh.rec.Record(trace.Event{
				Node:   label,
				NodeID: n.ID,
				MsgID:  m.ID,
				DLC:    m.Len,
				Data:   append([]byte(nil), m.Data[:m.Len]...),
			})
		},
	}
	sh.nextID++
	sh.nodes[label] = n
	return n
}

// transmit parses "tx <id> [hexbytes] [from <label>]".
func (sh *shell) transmit(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: tx <id> [hexbytes] [from <label>]")
	}

	var source *bus.Node
	if len(args) >= 2 && args[len(args)-2] == "from" {
		label := args[len(args)-1]
		n, ok := sh.nodes[label]
		if !ok {
			return fmt.Errorf("unknown source node %q", label)
		}
		source = n
		args = args[:len(args)-2]
	}

	id, err := strconv.ParseUint(args[0], 0, 32)
	if err != nil {
		return fmt.Errorf("bad frame id %q: %w", args[0], err)
	}
	data := ""
	if len(args) > 1 {
		data = strings.Join(args[1:], "")
	}

	m, err := scenario.Frame{ID: uint32(id), Data: data}.Message()
	if err != nil {
		return err
	}
	return sh.bus.Transmit(&m, source)
}
