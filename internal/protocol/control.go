package protocol

// Header-only control packets: link probes and session teardown.

type ActiveTest struct{ Header Header }

type ActiveTestResp struct{ Header Header }

type Exit struct{ Header Header }

type ExitResp struct{ Header Header }

func NewActiveTest(seq uint32) *ActiveTest {
	return &ActiveTest{Header: Header{RequestID: RequestActiveTest, SequenceID: seq}}
}

func NewActiveTestResp(seq uint32) *ActiveTestResp {
	return &ActiveTestResp{Header: Header{RequestID: RequestActiveTestResp, SequenceID: seq}}
}

func NewExit(seq uint32) *Exit {
	return &Exit{Header: Header{RequestID: RequestExit, SequenceID: seq}}
}

func NewExitResp(seq uint32) *ExitResp {
	return &ExitResp{Header: Header{RequestID: RequestExitResp, SequenceID: seq}}
}

func (m *ActiveTest) Head() *Header           { return &m.Header }
func (m *ActiveTest) RequestID() RequestID    { return RequestActiveTest }
func (m *ActiveTest) encodeBody(*writer) error { return nil }
func (m *ActiveTest) decodeBody(*reader)       {}

func (m *ActiveTestResp) Head() *Header           { return &m.Header }
func (m *ActiveTestResp) RequestID() RequestID    { return RequestActiveTestResp }
func (m *ActiveTestResp) encodeBody(*writer) error { return nil }
func (m *ActiveTestResp) decodeBody(*reader)       {}

func (m *Exit) Head() *Header           { return &m.Header }
func (m *Exit) RequestID() RequestID    { return RequestExit }
func (m *Exit) encodeBody(*writer) error { return nil }
func (m *Exit) decodeBody(*reader)       {}

func (m *ExitResp) Head() *Header           { return &m.Header }
func (m *ExitResp) RequestID() RequestID    { return RequestExitResp }
func (m *ExitResp) encodeBody(*writer) error { return nil }
func (m *ExitResp) decodeBody(*reader)       {}
