package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/mcoot/relsync/internal/api/response"
	"github.com/mcoot/relsync/internal/model"
	"github.com/mcoot/relsync/internal/services/reconcile"
)

// Output handles formatting output based on the configured format
type Output struct {
	format string
	w      io.Writer
}

// NewOutput creates a new Output formatter writing to w
func NewOutput(format string, w io.Writer) *Output {
	return &Output{format: format, w: w}
}

// Print outputs data in the configured format
func (o *Output) Print(data any) {
	if o.format == "json" {
		o.printJSON(data)
	} else {
		o.printText(data)
	}
}

// PrintMessage outputs a simple message
func (o *Output) PrintMessage(msg string) {
	if o.format == "json" {
		data, _ := json.Marshal(map[string]string{"message": msg})
		fmt.Fprintln(o.w, string(data))
	} else {
		fmt.Fprintln(o.w, msg)
	}
}

func (o *Output) printJSON(data any) {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(data)
}

func (o *Output) printText(data any) {
	switch v := data.(type) {
	case *model.PeerProfile:
		o.printProfile(v)
	case model.StateSnapshot:
		o.printSnapshot(v)
	case *reconcile.Report:
		o.printReport(v.Peers, v.Fetched, v.Failed)
	case response.Reconcile:
		o.printReport(v.Peers, v.Fetched, v.Failed)
	case response.Health:
		fmt.Fprintf(o.w, "Status: %s\n", v.Status)
		fmt.Fprintf(o.w, "Initialized: %s\n", yesNo(v.Initialized))
		fmt.Fprintf(o.w, "Authenticated: %s\n", yesNo(v.Authenticated))
	case response.Session:
		fmt.Fprintf(o.w, "Authenticated: %s\n", yesNo(v.Authenticated))
	default:
		// Fallback to JSON for unknown types
		o.printJSON(data)
	}
}

func (o *Output) printProfile(p *model.PeerProfile) {
	name := p.DisplayName
	if name == "" {
		name = p.Username
	}
	fmt.Fprintf(o.w, "Peer: %s (%s)\n", name, p.ID)
	if p.DisplayName != "" && p.Username != "" {
		fmt.Fprintf(o.w, "Username: %s\n", p.Username)
	}
	fmt.Fprintf(o.w, "Status: %s\n", p.Status)
	fmt.Fprintf(o.w, "Country: %s\n", p.CountryCode)
	if p.ClanID != nil {
		fmt.Fprintf(o.w, "Clan: %s\n", *p.ClanID)
	}

	if p.Self == nil {
		return
	}
	o.printIDs("Friends", p.Self.Friends)
	o.printIDs("Outgoing", p.Self.Outgoing)
	o.printIDs("Incoming", p.Self.Incoming)
	o.printIDs("Ignored", p.Self.Ignored)
	if len(p.Self.Permissions) > 0 {
		fmt.Fprintf(o.w, "Permissions: %s\n", strings.Join(p.Self.Permissions, ", "))
	}
}

func (o *Output) printSnapshot(s model.StateSnapshot) {
	self := s.Self
	fmt.Fprintf(o.w, "Self: %s (%s)\n", self.Username, self.ID)
	fmt.Fprintf(o.w, "Initialized: %s\n", yesNo(s.Initialized))
	fmt.Fprintf(o.w, "Authenticated: %s\n", yesNo(s.Authenticated))
	if s.LastReconciledAt != nil {
		fmt.Fprintf(o.w, "Last reconciled: %s\n", s.LastReconciledAt.Format("2006-01-02 15:04:05"))
	}
	o.printIDs("Friends", self.Relationships.Friends.Slice())
	o.printIDs("Outgoing", self.Relationships.Outgoing.Slice())
	o.printIDs("Incoming", self.Relationships.Incoming.Slice())
}

func (o *Output) printReport(peers, fetched int, failed []model.PeerID) {
	fmt.Fprintf(o.w, "Peers: %d\n", peers)
	fmt.Fprintf(o.w, "Fetched: %d\n", fetched)
	if len(failed) > 0 {
		o.printIDs("Failed", failed)
	}
}

func (o *Output) printIDs(label string, ids []model.PeerID) {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.String()
	}
	fmt.Fprintf(o.w, "%s (%d): %s\n", label, len(ids), strings.Join(parts, ", "))
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
