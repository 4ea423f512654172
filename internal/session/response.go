package session

// ResponseFlag is the response-buffer state (spec.md §3).
type ResponseFlag int

const (
	RNoData    ResponseFlag = iota // no pending response data
	RRespReady                     // data staged, ready to be read
	RTmp                           // first fragment of a two-part decipher is held
)

// ResponseBuffer is the single-owner staging area for the pending response
// and, for two-part ENVELOPE deciphers, the first fragment (spec.md §3,
// §4.3). Unlike the source's aliased 256-byte scratch region, this
// implementation gives the pending fragment its own slice — spec.md §9
// calls the aliasing a memory-budget hack not required on a modern target.
type ResponseBuffer struct {
	Flag     ResponseFlag
	Data     []byte // staged response data (RRespReady)
	Fragment []byte // held first ENVELOPE fragment (RTmp)
}

// StageResponse records ready response data.
func (r *ResponseBuffer) StageResponse(data []byte) {
	r.Flag = RRespReady
	r.Data = data
	r.Fragment = nil
}

// StageFragment holds the first half of a two-part decipher.
func (r *ResponseBuffer) StageFragment(data []byte) {
	r.Flag = RTmp
	r.Fragment = append([]byte(nil), data...)
	r.Data = nil
}

// Clear drops any pending response or fragment. Called on consumption and
// on any non-matching next command (spec.md §3).
func (r *ResponseBuffer) Clear() {
	*r = ResponseBuffer{}
}
