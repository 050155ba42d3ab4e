package at

const (
	// Terminal Control
	CRLF   = "\r\n"
	Prompt = "> "

	// Response Codes
	OK       = "OK"
	ERROR    = "ERROR"
	CmeError = "+CME ERROR:"
	CmsError = "+CMS ERROR:"

	// Custom final result codes used by the SIMCOM TCP/IP stack. These
	// terminate a command response but do not follow the generic
	// OK/ERROR grammar, so the digester must try them first.
	ShutOk   = "SHUT OK"
	CloseOk  = ", CLOSE OK"
	SendFail = ", SEND FAIL"
)

// MaxReadChunk is the largest number of bytes the modem returns for a
// single AT+CIPRXGET=2 request.
const MaxReadChunk = 1460

// MaxWriteChunk is the largest single AT+CIPSEND payload, as reported
// by AT+CIPSEND?.
const MaxWriteChunk = 1024
