package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/lansync/lansyncd/internal/control"
)

const statusRequestTimeout = 5 * time.Second

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Query the running daemon's status endpoint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd)
		},
	}
}

func runStatus(cmd *cobra.Command) error {
	cc := mustCLIContext(cmd.Context())

	client := &http.Client{Timeout: statusRequestTimeout}

	resp, err := client.Get(fmt.Sprintf("http://%s/status", cc.Cfg.Network.ControlAddr))
	if err != nil {
		return fmt.Errorf("querying daemon status (is it running?): %w", err)
	}
	defer resp.Body.Close()

	var snap control.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return fmt.Errorf("decoding status response: %w", err)
	}

	printStatus(snap)

	return nil
}

func printStatus(snap control.Snapshot) {
	fmt.Printf("home: %s\n", snap.HomePath)
	fmt.Printf("directories: %v\n", snap.Directories)
	fmt.Printf("peers (%d):\n", len(snap.Peers))

	rows := make([][]string, 0, len(snap.Peers))
	for _, p := range snap.Peers {
		rows = append(rows, []string{p.Hostname, p.Addr, p.LastSeen.Format(time.RFC3339), fmt.Sprint(p.SyncDirs)})
	}

	printTable([]string{"HOSTNAME", "ADDRESS", "LAST SEEN", "SYNC DIRS"}, rows)
}

func printTable(headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}

	for _, row := range rows {
		for i, cell := range row {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	printRow(headers, widths)

	for _, row := range rows {
		printRow(row, widths)
	}
}

func printRow(row []string, widths []int) {
	for i, cell := range row {
		fmt.Printf("%-*s  ", widths[i], cell)
	}

	fmt.Println()
}
