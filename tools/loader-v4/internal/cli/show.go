package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"github.com/solana-program/loader-v4/smartcontract/sdk/go/loaderv4"
)

func renderProgram(w io.Writer, info *loaderv4.ProgramAccountInfo) {
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetBorder(true)
	table.SetHeader([]string{"Field", "Value"})

	table.Append([]string{"Program", info.Key.String()})
	table.Append([]string{"Status", info.Status().String()})
	table.Append([]string{"Last Deployed Slot", strconv.FormatUint(info.Header.Slot, 10)})
	if authority, ok := info.Header.Authority(); ok {
		table.Append([]string{"Authority", authority.String()})
	}
	if next, ok := info.Header.NextVersion(); ok {
		table.Append([]string{"Next Version", next.String()})
	}
	table.Append([]string{"Data Length", fmt.Sprintf("%d bytes", len(info.Payload))})
	table.Append([]string{"Balance", fmt.Sprintf("%d lamports", info.Lamports)})
	table.Render()
}
