package protocol

import (
	"fmt"
	"strings"
)

// ReportStatus is the parsed content of a status-report Deliver:
//
//	id:<10 octets> sub:<3> dlvrd:<3> Submit_date:<10> done_date:<10> stat:<7> err:<3> Text:<20>
//
// ID is the MsgID returned in the SubmitResp of the reported message.
type ReportStatus struct {
	ID         MsgID
	Sub        string
	Dlvrd      string
	SubmitDate string
	DoneDate   string
	Stat       string
	Err        string
	Text       string
}

// Delivered reports whether the terminal received the message.
func (r ReportStatus) Delivered() bool {
	return strings.EqualFold(r.Stat, "DELIVRD")
}

type reportField struct {
	label string
	width int
	set   func(*ReportStatus, string)
	get   func(ReportStatus) string
}

var reportFields = []reportField{
	{"sub:", 3, func(r *ReportStatus, v string) { r.Sub = v }, func(r ReportStatus) string { return r.Sub }},
	{"dlvrd:", 3, func(r *ReportStatus, v string) { r.Dlvrd = v }, func(r ReportStatus) string { return r.Dlvrd }},
	{"submit_date:", 10, func(r *ReportStatus, v string) { r.SubmitDate = v }, func(r ReportStatus) string { return r.SubmitDate }},
	{"done_date:", 10, func(r *ReportStatus, v string) { r.DoneDate = v }, func(r ReportStatus) string { return r.DoneDate }},
	{"stat:", 7, func(r *ReportStatus, v string) { r.Stat = v }, func(r ReportStatus) string { return r.Stat }},
	{"err:", 3, func(r *ReportStatus, v string) { r.Err = v }, func(r ReportStatus) string { return r.Err }},
	{"text:", 20, func(r *ReportStatus, v string) { r.Text = v }, func(r ReportStatus) string { return r.Text }},
}

const reportIDPrefix = "id:"

// ParseReport parses status-report content. Labels are matched
// case-insensitively; a value ends at its fixed width or at the next label,
// whichever comes first. stat is required.
func ParseReport(content []byte) (ReportStatus, error) {
	var rs ReportStatus
	head := len(reportIDPrefix) + MsgIDLen
	if len(content) < head || !strings.EqualFold(string(content[:len(reportIDPrefix)]), reportIDPrefix) {
		return rs, fmt.Errorf("%w: missing id", ErrMalformedReport)
	}
	copy(rs.ID[:], content[len(reportIDPrefix):head])

	rest := string(content[head:])
	lower := strings.ToLower(rest)
	starts := make([]int, len(reportFields))
	for i, f := range reportFields {
		starts[i] = strings.Index(lower, f.label)
	}
	for i, f := range reportFields {
		idx := starts[i]
		if idx < 0 {
			continue
		}
		begin := idx + len(f.label)
		end := min(begin+f.width, len(rest))
		for j, other := range starts {
			if j != i && other >= begin && other < end {
				end = other
			}
		}
		f.set(&rs, strings.Trim(rest[begin:end], " \x00"))
	}
	if starts[4] < 0 {
		return rs, fmt.Errorf("%w: missing stat", ErrMalformedReport)
	}
	return rs, nil
}

// FormatReport renders rs in the fixed-width layout ParseReport accepts.
func FormatReport(rs ReportStatus) []byte {
	var b strings.Builder
	b.WriteString(reportIDPrefix)
	b.Write(rs.ID[:])
	for _, f := range reportFields {
		label := f.label
		switch label {
		case "submit_date:":
			label = "Submit_date:"
		case "text:":
			label = "Text:"
		}
		b.WriteByte(' ')
		b.WriteString(label)
		b.WriteString(padRight(f.get(rs), f.width))
	}
	return []byte(b.String())
}

func padRight(s string, width int) string {
	if len(s) >= width {
		return s[:width]
	}
	return s + strings.Repeat(" ", width-len(s))
}
