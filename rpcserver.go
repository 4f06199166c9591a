package decodecore

import (
	"fmt"
	"log"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"os/signal"
	"time"

	"github.com/davecgh/go-spew/spew"
)

// ClientUpdate is one broadcast message pushed to every attached RPC
// client: a short tag identifying the kind of update plus its payload.
type ClientUpdate struct {
	Tag     string
	Payload interface{}
}

// DecoderControl is the RPC-exposed control surface for a DecoderStack:
// every call here maps directly onto one DecoderStack operation. One
// DecoderControl serves every connected client; requests from a single
// connection are served synchronously (no internal lock needed for a
// single request), while separate connections run concurrently.
type DecoderControl struct {
	stack         *DecoderStack
	decoders      map[string]*Decoder
	clientUpdates chan<- ClientUpdate
}

func NewDecoderControl(stack *DecoderStack, updates chan<- ClientUpdate) *DecoderControl {
	c := &DecoderControl{stack: stack, decoders: make(map[string]*Decoder), clientUpdates: updates}
	go c.relayStackSignals()
	return c
}

// relayStackSignals forwards the stack's own new-data/done signals onto the
// client broadcast channel as PROGRESS/STATUS updates, alongside the
// ROWS/DECODE_DONE updates the RPC handlers push directly.
func (c *DecoderControl) relayStackSignals() {
	data := c.stack.Signals().SubscribeNewDecodeData()
	for range data {
		c.clientUpdates <- ClientUpdate{Tag: "PROGRESS", Payload: c.stack.Progress()}
		c.clientUpdates <- ClientUpdate{Tag: "STATUS", Payload: c.stack.DecodeState()}
	}
}

type AddSubDecoderArgs struct {
	Handle     string
	Descriptor DecoderDescriptor
}

func (c *DecoderControl) AddSubDecoder(args *AddSubDecoderArgs, reply *bool) error {
	dec := NewDecoder(args.Descriptor)
	c.decoders[args.Handle] = dec
	c.stack.AddSubDecoder(dec)
	*reply = true
	c.clientUpdates <- ClientUpdate{Tag: "ROWS", Payload: c.stack.ListRows()}
	return nil
}

type RemoveSubDecoderArgs struct {
	Handle string
}

func (c *DecoderControl) RemoveSubDecoder(args *RemoveSubDecoderArgs, reply *bool) error {
	dec, ok := c.decoders[args.Handle]
	if !ok {
		*reply = false
		return fmt.Errorf("decodecore: unknown decoder handle %q", args.Handle)
	}
	c.stack.RemoveSubDecoder(dec)
	delete(c.decoders, args.Handle)
	*reply = true
	c.clientUpdates <- ClientUpdate{Tag: "ROWS", Payload: c.stack.ListRows()}
	return nil
}

type SetChannelMapArgs struct {
	Handle  string
	Probes  map[ChannelDesc]int
}

func (c *DecoderControl) SetChannelMap(args *SetChannelMapArgs, reply *bool) error {
	dec, ok := c.decoders[args.Handle]
	if !ok {
		return fmt.Errorf("decodecore: unknown decoder handle %q", args.Handle)
	}
	dec.SetChannelMap(args.Probes)
	*reply = true
	return nil
}

type SetOptionArgs struct {
	Handle string
	Key    string
	Value  WireOptionValue
}

func (c *DecoderControl) SetOption(args *SetOptionArgs, reply *bool) error {
	dec, ok := c.decoders[args.Handle]
	if !ok {
		return fmt.Errorf("decodecore: unknown decoder handle %q", args.Handle)
	}
	value, err := args.Value.FromWire()
	if err != nil {
		return err
	}
	dec.SetOption(args.Key, value)
	*reply = true
	return nil
}

type SetDecodeRegionArgs struct {
	Handle string
	Start  uint64
	End    uint64
}

func (c *DecoderControl) SetDecodeRegion(args *SetDecodeRegionArgs, reply *bool) error {
	dec, ok := c.decoders[args.Handle]
	if !ok {
		return fmt.Errorf("decodecore: unknown decoder handle %q", args.Handle)
	}
	dec.SetDecodeRegion(args.Start, args.End)
	*reply = true
	return nil
}

func (c *DecoderControl) Commit(dummy *string, reply *bool) error {
	changed := c.stack.CommitAll()
	*reply = changed
	if changed {
		c.clientUpdates <- ClientUpdate{Tag: "ROWS", Payload: c.stack.ListRows()}
	}
	return nil
}

func (c *DecoderControl) StartDecode(dummy *string, reply *bool) error {
	go func() {
		if err := c.stack.BeginDecodeWork(); err != nil {
			log.Printf("decode run ended: %v", err)
		}
		c.clientUpdates <- ClientUpdate{Tag: "DECODE_DONE", Payload: c.stack.ErrorMessage()}
	}()
	*reply = true
	return nil
}

func (c *DecoderControl) StopDecode(dummy *string, reply *bool) error {
	c.stack.StopDecodeWork()
	*reply = true
	return nil
}

// FullDecoderStatus is the status snapshot GetStatus returns: the fields a
// renderer polls to show decode progress without subscribing to the
// publish feed.
type FullDecoderStatus struct {
	DecodeState    DecodeState
	Progress       int
	SamplesDecoded int64
	ErrorMessage   string
	OutOfMemory    bool
}

func (c *DecoderControl) GetStatus(dummy *string, reply *FullDecoderStatus) error {
	*reply = FullDecoderStatus{
		DecodeState:    c.stack.DecodeState(),
		Progress:       c.stack.Progress(),
		SamplesDecoded: c.stack.SamplesDecoded(),
		ErrorMessage:   c.stack.ErrorMessage(),
		OutOfMemory:    c.stack.OutOfMemory(),
	}
	log.Printf("status requested: %s", spew.Sdump(*reply))
	return nil
}

func (c *DecoderControl) ListRows(dummy *string, reply *[]Row) error {
	*reply = c.stack.ListRows()
	return nil
}

type GetAnnotationSubsetArgs struct {
	Row         Row
	StartSample uint64
	EndSample   uint64
}

func (c *DecoderControl) GetAnnotationSubset(args *GetAnnotationSubsetArgs, reply *[]Annotation) error {
	subset, err := c.stack.GetAnnotationSubset(args.Row, args.StartSample, args.EndSample)
	if err != nil {
		return err
	}
	*reply = subset
	return nil
}

type SetRowVisibilityArgs struct {
	Row     Row
	Visible bool
}

func (c *DecoderControl) SetRowVisibility(args *SetRowVisibilityArgs, reply *bool) error {
	c.stack.SetRowVisibility(args.Row, args.Visible)
	*reply = true
	return nil
}

func (c *DecoderControl) broadcastHeartbeat() {
	c.clientUpdates <- ClientUpdate{Tag: "ALIVE", Payload: time.Now().Unix()}
}

// RunRPCServer sets up and runs a JSON-RPC server exposing control, one
// goroutine per connection, serving each connection's requests
// synchronously so DecoderControl needs no lock of its own beyond what
// DecoderStack already provides. If block, it runs until SIGINT.
func RunRPCServer(control *DecoderControl, port int, block bool) error {
	go func() {
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			control.broadcastHeartbeat()
		}
	}()

	server := rpc.NewServer()
	if err := server.Register(control); err != nil {
		return fmt.Errorf("decodecore: register RPC service: %w", err)
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("decodecore: listen: %w", err)
	}

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				log.Printf("accept error: %v", err)
				return
			}
			log.Printf("new connection established")
			go func() {
				codec := jsonrpc.NewServerCodec(conn)
				for {
					if err := server.ServeRequest(codec); err != nil {
						log.Printf("server stopped: %v", err)
						break
					}
				}
			}()
		}
	}()

	if block {
		interruptCatcher := make(chan os.Signal, 1)
		signal.Notify(interruptCatcher, os.Interrupt)
		<-interruptCatcher
		control.stack.StopDecodeWork()
	}
	return nil
}
