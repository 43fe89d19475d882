package protocol

import (
	"errors"
	"testing"
)

func TestFormatParseReport(t *testing.T) {
	in := ReportStatus{
		ID:         testMsgID(),
		Sub:        "001",
		Dlvrd:      "001",
		SubmitDate: "2602091602",
		DoneDate:   "2602091603",
		Stat:       "DELIVRD",
		Err:        "000",
		Text:       "hello",
	}
	content := FormatReport(in)
	if len(content) != 122 {
		t.Fatalf("unexpected report length: %d", len(content))
	}
	out, err := ParseReport(content)
	if err != nil {
		t.Fatalf("parse report: %v", err)
	}
	if out != in {
		t.Fatalf("report mismatch:\n got=%+v\nwant=%+v", out, in)
	}
	if !out.Delivered() {
		t.Fatalf("expected delivered")
	}
}

func TestParseReportShortValuesStopAtNextLabel(t *testing.T) {
	id := testMsgID()
	content := append([]byte("Id:"), id[:]...)
	content = append(content, []byte(" sub:1 dlvrd:1 submit_date:2602091602 done_date:2602091603 Stat:UNDELIV err:6 text:x")...)
	out, err := ParseReport(content)
	if err != nil {
		t.Fatalf("parse report: %v", err)
	}
	if out.Sub != "1" || out.Dlvrd != "1" || out.Err != "6" || out.Stat != "UNDELIV" || out.Text != "x" {
		t.Fatalf("unexpected report: %+v", out)
	}
	if out.Delivered() {
		t.Fatalf("UNDELIV must not be delivered")
	}
}

func TestParseReportMalformed(t *testing.T) {
	if _, err := ParseReport([]byte("nope")); !errors.Is(err, ErrMalformedReport) {
		t.Fatalf("expected ErrMalformedReport, got %v", err)
	}
	id := testMsgID()
	noStat := append([]byte("id:"), id[:]...)
	noStat = append(noStat, []byte(" sub:001")...)
	if _, err := ParseReport(noStat); !errors.Is(err, ErrMalformedReport) {
		t.Fatalf("expected ErrMalformedReport for missing stat, got %v", err)
	}
}

func TestDeliverProjections(t *testing.T) {
	status := ReportStatus{ID: testMsgID(), Stat: "DELIVRD", Err: "000"}
	report := &Deliver{Body: DeliverBody{
		MsgID:      MsgID{1},
		IsReport:   1,
		RecvTime:   "20260209160200",
		SrcTermID:  "13800000000",
		DestTermID: "106900001234",
		Content:    FormatReport(status),
	}}
	if !report.IsReport() {
		t.Fatalf("expected report")
	}
	rm, err := report.Report()
	if err != nil {
		t.Fatalf("report projection: %v", err)
	}
	if rm.Status.ID != status.ID || rm.MsgID != (MsgID{1}) || rm.SrcTermID != "13800000000" {
		t.Fatalf("unexpected report message: %+v", rm)
	}

	ucs2, err := EncodeContent(FormatUCS2, "退订")
	if err != nil {
		t.Fatalf("encode content: %v", err)
	}
	reply := (&Deliver{Body: DeliverBody{MsgFormat: FormatUCS2, Content: ucs2, SrcTermID: "13800000000"}}).Reply()
	text, err := reply.Text()
	if err != nil || text != "退订" {
		t.Fatalf("unexpected reply text=%q err=%v", text, err)
	}
}
