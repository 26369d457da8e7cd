package model

// ExtractionMethod is the tagged variant describing how an ExtractionResult
// was produced, in the order the PDF Extractor tries them.
type ExtractionMethod string

const (
	MethodPrimary ExtractionMethod = "primary_text_layer"
	MethodLayout  ExtractionMethod = "layout_parser"
	MethodOCR     ExtractionMethod = "ocr"
	MethodFailed  ExtractionMethod = "failed"
)

// ExtractionResult is the product of the PDF Extractor. It is always
// returned, never raised as an error for document-level failures — the
// caller distinguishes success from failure via Method.
type ExtractionResult struct {
	PaperID      string
	PDFURL       string
	Text         string
	PageCount    int
	Method       ExtractionMethod
	SpilledToTmp bool
	Err          string
}

// Failed reports whether extraction produced no usable text.
func (r ExtractionResult) Failed() bool {
	return r.Method == MethodFailed
}
