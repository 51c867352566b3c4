// Copyright 2025 The rvckit Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package checkpoint reads and writes .rvck checkpoint files.
//
// # Overview
//
// An .rvck file is a binary container: a fixed header with magic bytes
// and a SHA-256 checksum, a JSON header whose "model" field lists the
// parameter tensors, and a 64-byte aligned data section. Training state
// and free-form string metadata ride along as optional header fields.
//
// # Basic Usage
//
//	ck, err := checkpoint.Load("G_35200.rvck")
//	if err != nil {
//	    return err
//	}
//	for _, name := range ck.Keys() {
//	    fmt.Println(name, ck.Model[name].Shape())
//	}
//
//	err = checkpoint.Save("out.rvck", ck)
//
// # Partial Reads
//
// Reader gives header-only and per-tensor access without loading the
// whole file:
//
//	r, err := checkpoint.NewReader("G_35200.rvck")
//	if err != nil {
//	    return err
//	}
//	defer r.Close()
//	w, err := r.ReadTensor("enc_p.emb_phone.weight")
package checkpoint
