package tokenizer

import "errors"

// ErrUnknownToken is returned when an id or piece is not in the vocabulary.
var ErrUnknownToken = errors.New("unknown token")

// Tokenizer converts between text and token ids.
//
// Encode with addSpecial applies the model's BOS/EOS conventions. Decode with
// skipSpecial drops control tokens such as <|im_end|> from the output.
type Tokenizer interface {
	Encode(text string, addSpecial bool) ([]int, error)
	Decode(ids []int, skipSpecial bool) (string, error)
	TokenID(token string) (int, bool)
	VocabSize() int
}
