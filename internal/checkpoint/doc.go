// Package checkpoint reads and writes RVC checkpoint containers (.rvck).
//
// The container is the format the RVC training ecosystem exchanges model
// snapshots in:
//
//	Format Structure:
//	  [64 bytes: fixed header]
//	    0x00  Magic "RVCK" (4 bytes)
//	    0x04  Version (uint32 LE)
//	    0x08  Flags (uint32 LE)
//	    0x0C  Reserved (4 bytes, zero)
//	    0x10  Header Size (uint64 LE)
//	    0x18  Data Size (uint64 LE)
//	    0x20  SHA-256 checksum of the data section (32 bytes)
//	  [Header: JSON metadata]
//	  [Tensor data: raw bytes, 64-byte aligned]
//
// The JSON header nests the parameter table under the top-level "model"
// field. Auxiliary training state ("train") and free-form string metadata
// ("metadata") ride alongside it and are never merged, only carried or
// dropped wholesale.
//
// Example usage:
//
//	// Load a checkpoint
//	ck, err := checkpoint.Load("G_35200.rvck")
//	if err != nil {
//	    return err
//	}
//
//	// Save a checkpoint
//	if err := checkpoint.Save("merged/G.rvck", ck); err != nil {
//	    return err
//	}
package checkpoint
