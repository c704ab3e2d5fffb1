package plan

import (
	"encoding/hex"
	"fmt"

	"github.com/gosuri/uitable"
)

// FormatTable renders a human-readable partition table for an InstallPlan;
// the agent prints it once the pipeline has finished.
func FormatTable(p *InstallPlan) string {
	table := uitable.New()
	table.MaxColWidth = 64
	table.Wrap = true

	table.AddRow("NAME", "SOURCE SIZE", "TARGET SIZE", "SOURCE HASH", "TARGET HASH", "POSTINSTALL")
	for _, part := range p.Partitions {
		table.AddRow(
			part.Name,
			part.SourceSize,
			part.TargetSize,
			shortHash(part.SourceHash),
			shortHash(part.TargetHash),
			part.RunPostinstall,
		)
	}

	header := fmt.Sprintf("update_url=%s full=%v resume=%v source_slot=%v target_slot=%v\n",
		p.DownloadURL, p.IsFullUpdate, p.IsResume, p.SourceSlot, p.TargetSlot)

	return header + table.String()
}

func shortHash(h []byte) string {
	if len(h) == 0 {
		return "-"
	}
	enc := hex.EncodeToString(h)
	if len(enc) > 12 {
		enc = enc[:12] + "…"
	}
	return enc
}
