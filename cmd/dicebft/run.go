package main

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/dicemesh/go-dicebft/bft"
	"github.com/dicemesh/go-dicebft/blssig"
	"github.com/dicemesh/go-dicebft/pbft"
	"github.com/dicemesh/go-dicebft/qcstore"
	datastore "github.com/ipfs/go-datastore"
	ds_sync "github.com/ipfs/go-datastore/sync"
	logging "github.com/ipfs/go-log/v2"
	"github.com/urfave/cli/v2"
	"golang.org/x/xerrors"
)

var log = logging.Logger("dicebft")

var runCmd = cli.Command{
	Name:  "run",
	Usage: "runs an in-process replica mesh and submits dice rolls to it",
	Flags: []cli.Flag{
		&cli.IntFlag{
			Name:  "replicas",
			Value: 4,
			Usage: "number of replicas in the mesh (minimum 4)",
		},
		&cli.IntFlag{
			Name:  "rolls",
			Value: 10,
			Usage: "number of dice rolls to submit",
		},
		&cli.IntFlag{
			Name:  "batch-size",
			Value: 5,
			Usage: "operations per batch",
		},
	},
	Action: func(c *cli.Context) error {
		ctx := c.Context

		if err := logging.SetLogLevel("dicebft", "info"); err != nil {
			return xerrors.Errorf("setting log level: %w", err)
		}

		n := c.Int("replicas")
		rolls := c.Int("rolls")
		batchSize := c.Int("batch-size")

		directory := blssig.NewDirectory()
		signers := make([]*blssig.Signer, n)
		participants := make([]bft.PeerID, n)
		for i := range signers {
			signer, err := blssig.GenerateSigner()
			if err != nil {
				return xerrors.Errorf("generating signer %d: %w", i, err)
			}
			if _, err := directory.Register(signer.PublicKey()); err != nil {
				return xerrors.Errorf("registering signer %d: %w", i, err)
			}
			signers[i] = signer
			participants[i] = signer.PeerID()
		}

		// The client signs its own operations and is not a replica.
		client, err := blssig.GenerateSigner()
		if err != nil {
			return xerrors.Errorf("generating client signer: %w", err)
		}
		if _, err := directory.Register(client.PublicKey()); err != nil {
			return xerrors.Errorf("registering client: %w", err)
		}

		ds := ds_sync.MutexWrap(datastore.NewMapDatastore())
		store, err := qcstore.NewStore(ctx, ds)
		if err != nil {
			return xerrors.Errorf("creating certificate store: %w", err)
		}

		fabric := &mesh{}
		engines := make([]*pbft.Engine, n)
		for i := range engines {
			opts := []pbft.Option{
				pbft.WithBatchSize(batchSize),
				pbft.WithBroadcaster(fabric),
			}
			if i == 0 {
				opts = append(opts, pbft.WithCertificateSink(store))
			}
			engine, err := pbft.New(ctx, participants[i], participants,
				signers[i], directory, printingExecutor{replica: i}, opts...)
			if err != nil {
				return xerrors.Errorf("creating replica %d: %w", i, err)
			}
			engines[i] = engine
		}
		fabric.engines = engines

		for i, engine := range engines {
			if err := engine.Start(ctx); err != nil {
				return xerrors.Errorf("starting replica %d: %w", i, err)
			}
		}
		defer func() {
			for _, engine := range engines {
				_ = engine.Stop()
			}
		}()

		// Only the primary cuts batches, so the rolls go to it directly.
		primary := engines[0]
		for i, engine := range engines {
			if participants[i] == engine.Primary(0) {
				primary = engine
				break
			}
		}

		certs := make(chan *pbft.QuorumCertificate, 16)
		_, closer := store.SubscribeForNewCerts(certs)
		defer closer()

		for i := 0; i < rolls; i++ {
			op := &pbft.Operation{
				ID:        uint64(i + 1),
				Client:    client.PeerID(),
				Data:      []byte(fmt.Sprintf("roll:%d", 1+rand.Intn(6))),
				Timestamp: time.Now().UnixMilli(),
			}
			op.Signature, err = client.Sign(op.MarshalForSigning())
			if err != nil {
				return xerrors.Errorf("signing operation %d: %w", op.ID, err)
			}
			if err := primary.SubmitOperation(ctx, op); err != nil {
				return xerrors.Errorf("submitting operation %d: %w", op.ID, err)
			}
		}

		wantBatches := uint64((rolls + batchSize - 1) / batchSize)
		deadline := time.After(30 * time.Second)
		for executed := uint64(0); executed < wantBatches; {
			select {
			case qc := <-certs:
				log.Infow("certificate stored", "sequence", qc.Sequence, "view", qc.View)
				executed = qc.Sequence + 1
			case <-deadline:
				return xerrors.New("timed out waiting for all batches to commit")
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		log.Infow("all dice rolls committed", "rolls", rolls, "batches", wantBatches)
		return nil
	},
}

// mesh delivers every broadcast message to every replica in-process.
type mesh struct {
	engines []*pbft.Engine
}

func (m *mesh) Broadcast(ctx context.Context, msg *pbft.Message) error {
	for _, engine := range m.engines {
		if err := engine.ReceiveMessage(ctx, msg); err != nil {
			log.Debugw("replica refused message", "kind", msg.Kind, "err", err)
		}
	}
	return nil
}

type printingExecutor struct {
	replica int
}

func (p printingExecutor) Execute(_ context.Context, sequence uint64, ops []*pbft.Operation) error {
	for _, op := range ops {
		fmt.Printf("replica %d executed seq=%d op=%d %s\n", p.replica, sequence, op.ID, op.Data)
	}
	return nil
}
