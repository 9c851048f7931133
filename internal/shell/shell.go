// Package shell implements the interactive command line a human operator
// drives: list/peers/push/get/delete/exit, plus help. Grounded on the
// original Python's command_line() match/case dispatch, translated to a
// switch over the first whitespace-delimited token, and the teacher's
// p2p_help_commands text for the help output shape.
package shell

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"gossipfs/internal/metadata"
	"gossipfs/internal/node"
)

const helpText = `Use 'push <path>' to publish a file
Use 'get <content_id>' to download a file
Use 'delete <content_id>' to delete a file you own
Use 'list [local|remote|both]' to view known files
Use 'peers' to view tracked peers
Use 'exit' to quit`

// Run reads commands from in and writes output to out until the user
// types "exit" or the input stream closes. It runs node's clean-exit
// procedure before returning.
func Run(n *node.Node, in io.Reader, out io.Writer) {
	scanner := bufio.NewScanner(in)
	fmt.Fprintln(out, helpText)

	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		fields := strings.Fields(line)
		cmd, args := fields[0], fields[1:]

		switch cmd {
		case "help":
			fmt.Fprintln(out, helpText)
		case "ls", "list":
			handleList(n, out, args)
		case "peers":
			handlePeers(n, out)
		case "push":
			handlePush(n, out, args)
		case "get":
			handleGet(n, out, args)
		case "delete":
			handleDelete(n, out, args)
		case "exit":
			fmt.Fprintln(out, "Exiting program...")
			if err := n.CleanExit(); err != nil {
				fmt.Fprintln(out, "warning: clean exit failed:", err)
			}
			return
		default:
			fmt.Fprintf(out, "Unknown command %q. Type 'help' for a list of commands.\n", cmd)
		}
	}

	n.CleanExit()
}

func handleList(n *node.Node, out io.Writer, args []string) {
	mode := "both"
	if len(args) > 0 {
		mode = args[0]
	}

	var recs []*metadata.Record
	switch mode {
	case "local":
		recs = n.Metadata.ListLocal(n.Blobs.Exists)
	case "remote":
		recs = n.Metadata.ListRemote(n.Blobs.Exists)
	case "both":
		recs = n.Metadata.All()
	default:
		fmt.Fprintf(out, "unknown list mode %q, expected local|remote|both\n", mode)
		return
	}

	if len(recs) == 0 {
		fmt.Fprintln(out, "(no files)")
		return
	}
	for _, rec := range recs {
		fmt.Fprintf(out, "%s  %-20s  %d bytes  owner=%s  ts=%d\n", rec.ContentID, rec.FileName, rec.FileSize, rec.FileOwner, rec.FileTimestamp)
	}
}

func handlePeers(n *node.Node, out io.Writer) {
	peers := n.Peers.Snapshot()
	if len(peers) == 0 {
		fmt.Fprintln(out, "(no tracked peers)")
		return
	}
	for _, p := range peers {
		fmt.Fprintf(out, "%s  %s:%d  last_seen=%s\n", p.PeerID, p.Host, p.Port, p.LastSeen.Format("15:04:05"))
	}
}

func handlePush(n *node.Node, out io.Writer, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(out, "usage: push <path>")
		return
	}
	rec, err := n.Push(args[0])
	if err != nil {
		fmt.Fprintln(out, "push failed:", err)
		return
	}
	fmt.Fprintf(out, "published %s as %s\n", args[0], rec.ContentID)
}

func handleGet(n *node.Node, out io.Writer, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(out, "usage: get <content_id>")
		return
	}
	if err := n.Fetch(metadata.ContentID(args[0])); err != nil {
		fmt.Fprintln(out, "get failed:", err)
		return
	}
	fmt.Fprintf(out, "fetched %s\n", args[0])
}

func handleDelete(n *node.Node, out io.Writer, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(out, "usage: delete <content_id>")
		return
	}
	if err := n.Delete(metadata.ContentID(args[0])); err != nil {
		fmt.Fprintln(out, "delete failed:", err)
		return
	}
	fmt.Fprintf(out, "deleted %s\n", args[0])
}
