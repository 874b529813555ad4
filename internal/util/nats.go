package util

import (
	"encoding/json"

	nats "github.com/nats-io/nats.go"
	"github.com/shopmonkeyus/go-common/compress"
	"github.com/vmihailenco/msgpack/v5"
)

// DecodeNatsMsg will decode the nats message into the provided interface.
func DecodeNatsMsg(msg *nats.Msg, v any) error {
	switch msg.Header.Get("content-encoding") {
	case "msgpack":
		return msgpack.Unmarshal(msg.Data, v)
	case "gzip/json":
		data, err := compress.Gunzip(msg.Data)
		if err != nil {
			return err
		}
		return json.Unmarshal(data, v)
	}
	return json.Unmarshal(msg.Data, v)
}
