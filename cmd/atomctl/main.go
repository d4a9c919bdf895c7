// Command atomctl is an ad hoc CLI for submitting atoms to a running
// pyproxy master and printing their settled results, built on top of the
// same client package a host process would embed (spec §4.2). It reads one
// JSON AtomSpec per line from stdin (or a file given as an argument),
// submits it over a pooled Session, and writes one JSON AtomReply per line
// to stdout.
package main

import (
	"bufio"
	"encoding/base64"
	"flag"
	"fmt"
	"io"
	"os"

	"pyproxy/atom"
	"pyproxy/client"
)

func main() {
	addr := flag.String("addr", "", "master main listen address, host:port")
	poolSize := flag.Int("pool", 4, "maximum number of pooled sessions")
	flag.Parse()

	if *addr == "" {
		fmt.Fprintln(os.Stderr, "atomctl: -addr is required")
		os.Exit(2)
	}

	var input io.Reader = os.Stdin
	if flag.NArg() > 0 {
		f, err := os.Open(flag.Arg(0))
		if err != nil {
			fmt.Fprintf(os.Stderr, "atomctl: open input: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		input = f
	}

	codec := &JSONCodec{}
	pool := newSessionPool(*poolSize, func() (*client.Session, error) {
		return client.Connect(*addr)
	})
	defer pool.Close()

	scanner := bufio.NewScanner(input)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var spec AtomSpec
		if err := codec.Decode(line, &spec); err != nil {
			fmt.Fprintf(os.Stderr, "atomctl: decode atom spec: %v\n", err)
			continue
		}
		reply := submitOne(pool, codec, spec)
		body, err := codec.Encode(reply)
		if err != nil {
			fmt.Fprintf(os.Stderr, "atomctl: encode reply: %v\n", err)
			continue
		}
		out.Write(body)
		out.WriteByte('\n')
		out.Flush()
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "atomctl: read input: %v\n", err)
		os.Exit(1)
	}
}

func submitOne(pool *sessionPool, codec *JSONCodec, spec AtomSpec) AtomReply {
	ps, err := pool.Get()
	if err != nil {
		return AtomReply{FutureID: spec.FutureID, Err: err.Error()}
	}

	kind := atom.KindCodeString
	if spec.Kind == "pickle" {
		kind = atom.KindCodePickle
	}
	locals, err := base64.StdEncoding.DecodeString(spec.Locals)
	if err != nil {
		pool.Put(ps, true)
		return AtomReply{FutureID: spec.FutureID, Err: fmt.Sprintf("decode locals: %v", err)}
	}
	globals, err := base64.StdEncoding.DecodeString(spec.Globals)
	if err != nil {
		pool.Put(ps, true)
		return AtomReply{FutureID: spec.FutureID, Err: fmt.Sprintf("decode globals: %v", err)}
	}

	future, err := ps.Submit(spec.FutureID, kind, []byte(spec.Code), locals, globals)
	if err != nil {
		pool.Put(ps, false)
		return AtomReply{FutureID: spec.FutureID, Err: err.Error()}
	}

	payload, err := future.Wait(spec.Timeout)
	if err != nil {
		if remote, ok := err.(*client.RemoteError); ok {
			// The atom itself raised; the session is still perfectly usable.
			pool.Put(ps, true)
			return AtomReply{
				FutureID: spec.FutureID,
				IsError:  true,
				Payload:  base64.StdEncoding.EncodeToString(remote.Payload),
			}
		}
		pool.Put(ps, false)
		return AtomReply{FutureID: spec.FutureID, Err: err.Error()}
	}
	pool.Put(ps, true)

	return AtomReply{
		FutureID: spec.FutureID,
		Payload:  base64.StdEncoding.EncodeToString(payload),
	}
}
