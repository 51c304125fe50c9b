package main

import (
	"fmt"
	"os"

	"github.com/dicemesh/go-dicebft/pbft"
	gen "github.com/whyrusleeping/cbor-gen"
)

func main() {
	err := gen.WriteTupleEncodersToFile("./pbft/cbor_gen.go", "pbft",
		pbft.Operation{},
		pbft.OperationList{},
		pbft.OperationBatch{},
		pbft.QuorumCertificate{},
		pbft.Message{},
	)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
