package protocol

import "errors"

const CodeBadDocument = "E_BAD_DOCUMENT"

var ErrBadDocument = errors.New(CodeBadDocument)
