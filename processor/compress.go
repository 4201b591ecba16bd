// processor/compress.go
package processor

import (
	"github.com/golang/snappy"
)

// CompressCaption сжимает подпись альбома перед сохранением в БД
func CompressCaption(text string) []byte {
	return snappy.Encode(nil, []byte(text))
}

// DecompressCaption восстанавливает подпись из сжатого представления
func DecompressCaption(data []byte) (string, error) {
	decompressed, err := snappy.Decode(nil, data)
	if err != nil {
		return "", err
	}
	return string(decompressed), nil
}
