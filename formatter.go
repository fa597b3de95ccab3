package orchestrator

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/grid-infra/dl-acceptor/runner"
	"github.com/grid-infra/dl-acceptor/types"
)

// ResultFormatter is responsible for formatting and displaying run results.
type ResultFormatter interface {
	FormatResults(result *runner.Result) error
}

// ConsoleResultFormatter implements the ResultFormatter interface.
type ConsoleResultFormatter struct {
	logger log.Logger
}

// NewConsoleResultFormatter creates a new ConsoleResultFormatter.
func NewConsoleResultFormatter(logger log.Logger) *ConsoleResultFormatter {
	return &ConsoleResultFormatter{
		logger: logger,
	}
}

// FormatResults formats and displays the run results.
func (f *ConsoleResultFormatter) FormatResults(result *runner.Result) error {
	f.logger.Info("Printing results...")
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle(fmt.Sprintf("Transfer Test Results (%s)", formatDuration(result.Duration)))

	t.AppendHeader(table.Row{
		"#", "Run", "Config", "Flags", "Duration", "Exit", "Status", "Error",
	})

	// Set column configurations for better readability
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "#", Align: text.AlignRight},
		{Name: "Config", WidthMax: 50, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Exit", Align: text.AlignRight},
		{Name: "Error", WidthMax: 40, WidthMaxEnforcer: text.WrapSoft},
	})

	for i, run := range result.Runs {
		exit := strconv.Itoa(run.ExitCode)
		if run.Status == types.RunStatusSkip {
			exit = "-"
		}

		t.AppendRow(table.Row{
			i + 1,
			run.Config.GetName(),
			run.Config.ConfigPath,
			run.Config.FlagString(),
			formatDuration(run.Duration),
			exit,
			getResultString(run.Status),
			errString(run.Error),
		})
	}

	// Update the table style setting based on result status
	if result.Status == types.RunStatusPass {
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	} else if result.Status == types.RunStatusSkip {
		t.SetStyle(table.StyleColoredBlackOnYellowWhite)
	} else {
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	}

	// Add summary footer
	t.AppendFooter(table.Row{
		"TOTAL",
		"",
		"",
		"",
		formatDuration(result.Duration),
		result.LastExitCode,
		getResultString(result.Status),
		"",
	})

	t.Render()

	fmt.Println(result.String())

	return nil
}

// Helper function to format duration to seconds with 1 decimal place
func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}
