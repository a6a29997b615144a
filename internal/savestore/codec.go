package savestore

import (
	"bytes"
	"context"

	"github.com/lk2023060901/simsave/internal/storage/bufpool"
	"github.com/lk2023060901/simsave/internal/storage/compressor"
	"github.com/lk2023060901/simsave/internal/storage/crypto"
	"github.com/lk2023060901/simsave/pkg/objgraph"
	"github.com/lk2023060901/simsave/pkg/util/merr"
)

// streamCodec 负责对象流与落盘字节之间的转换。
//
// 写出：roots --> objgraph.Encoder --> [compress?] --> [seal?] --> objects.sav[.zst]
// 读入：objects.sav[.zst] --> [open?] --> [decompress?] --> objgraph.Decoder --> roots
type streamCodec struct {
	reg        *objgraph.Registry
	indent     string
	compressor compressor.Compressor
	sealer     crypto.Sealer
	buffers    bufpool.Pool
}

// encodedStream 为一次写出的结果，写盘后需调用 release 归还缓冲区。
type encodedStream struct {
	data        []byte
	compression string
	sealing     string
	rawBytes    int64
	rootIDs     []int
	release     func()
}

// encode 在同一个会话中依次写出全部 root，每条记录之间检查一次 ctx。
func (c *streamCodec) encode(ctx context.Context, sess *objgraph.WriteSession, roots []any) (*encodedStream, error) {
	buf := c.buffers.Get()
	enc := objgraph.NewEncoder(buf, c.reg, objgraph.WithIndent(c.indent))
	ids := make([]int, 0, len(roots))
	for _, root := range roots {
		err := ctx.Err()
		if err == nil {
			var id int
			id, err = enc.Serialize(sess, root)
			ids = append(ids, id)
		}
		if err != nil {
			c.buffers.Put(buf)
			return nil, err
		}
	}

	out := &encodedStream{
		data:        buf.Bytes(),
		compression: compressor.KindNone,
		sealing:     crypto.KindNone,
		rawBytes:    int64(buf.Len()),
		rootIDs:     ids,
		release:     func() { c.buffers.Put(buf) },
	}
	if compressor.Worthwhile(c.compressor, buf.Len()) {
		packed, err := c.compressor.Compress(nil, out.data)
		if err != nil {
			out.release()
			return nil, merr.WrapErrIoFailed("compress object stream", err)
		}
		out.data = packed
		out.compression = c.compressor.Name()
	}
	if c.sealer != nil && c.sealer.Name() != crypto.KindNone {
		sealed, err := c.sealer.Seal(out.data, []byte(sess.ID()))
		if err != nil {
			out.release()
			return nil, merr.WrapErrIoFailed("seal object stream", err)
		}
		out.data = sealed
		out.sealing = c.sealer.Name()
	}
	return out, nil
}

// unpack 按清单记录的加密与压缩方式还原对象流。
func (c *streamCodec) unpack(data []byte, m *Manifest) ([]byte, error) {
	data, err := c.open(data, m)
	if err != nil {
		return nil, err
	}
	return c.decompress(data, m.Compression)
}

func (c *streamCodec) open(data []byte, m *Manifest) ([]byte, error) {
	switch m.Sealing {
	case "", crypto.KindNone:
		return data, nil
	}
	if c.sealer == nil || c.sealer.Name() == crypto.KindNone {
		return nil, merr.WrapErrParameterMissing("savestore.seal_key", "save is sealed")
	}
	if c.sealer.Name() != m.Sealing {
		return nil, merr.WrapErrOperationNotSupported("open "+m.Sealing, "configured sealing is "+c.sealer.Name())
	}
	return c.sealer.Open(data, []byte(m.Session))
}

func (c *streamCodec) decompress(data []byte, compression string) ([]byte, error) {
	switch {
	case compression == compressor.KindNone || compression == "":
		return data, nil
	case c.compressor != nil && compression == c.compressor.Name():
		return c.compressor.Decompress(nil, data)
	default:
		other, err := compressor.New(compression, 0)
		if err != nil {
			return nil, err
		}
		defer other.Close()
		return other.Decompress(nil, data)
	}
}

// decode 读取恰好 n 条记录，之后流中不应再有内容。
func (c *streamCodec) decode(ctx context.Context, sess *objgraph.ReadSession, plain []byte, n int) ([]any, error) {
	dec := objgraph.NewDecoder(bytes.NewReader(plain), c.reg)
	roots := make([]any, 0, n)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		v, err := dec.Deserialize(sess)
		if err != nil {
			return nil, err
		}
		roots = append(roots, v)
	}
	if dec.More() {
		return nil, merr.WrapErrSyntax("end of stream", "extra record", dec.Position(), "<root>")
	}
	return roots, nil
}

// inspect 只解析不实例化，不依赖类型注册。
func (c *streamCodec) inspect(ctx context.Context, plain []byte) ([]objgraph.Value, error) {
	dec := objgraph.NewDecoder(bytes.NewReader(plain), c.reg)
	sess := objgraph.NewReadSession()
	var values []objgraph.Value
	for dec.More() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		v, err := dec.ParseValue(sess)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, nil
}
