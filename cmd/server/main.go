// Command server launches one replica of the chat cluster, either as the
// first leader of a fresh cluster or as a follower of an existing one.
//
// Usage: server <id> {leader|follower} <client_addr> <peer_addr> [--leader_address=<addr>]
//
// A follower must be given --leader_address so it knows who to register
// with at startup; a leader ignores the flag since it has no one to
// register with. The process serves both a peer-facing and a
// client-facing HTTP listener and shuts down gracefully on SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fenwick-labs/chatcluster/internal/api"
	"github.com/fenwick-labs/chatcluster/internal/auth"
	"github.com/fenwick-labs/chatcluster/internal/cluster"
	"github.com/fenwick-labs/chatcluster/internal/store"
)

const (
	clientSemaphoreSize = 10
	peerSemaphoreSize   = 20
	bindRetries         = 3
	bindRetryDelay      = 500 * time.Millisecond
)

func main() {
	positional, flagArgs := splitPositionalArgs(os.Args[1:])

	fs := flag.NewFlagSet("server", flag.ExitOnError)
	leaderAddress := fs.String("leader_address", "", "address of the existing leader (required for role=follower)")
	fs.Usage = usage
	if err := fs.Parse(flagArgs); err != nil {
		log.Fatalf("server: %v", err)
	}

	if len(positional) != 4 {
		usage()
		os.Exit(2)
	}
	id, role, clientAddr, peerAddr := positional[0], positional[1], positional[2], positional[3]

	if role != "leader" && role != "follower" {
		log.Fatalf("server: role must be %q or %q, got %q", "leader", "follower", role)
	}
	if role == "follower" && *leaderAddress == "" {
		log.Fatalf("server: role=follower requires --leader_address")
	}

	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if role == "leader" {
		runLeader(ctx, id, clientAddr, peerAddr)
		return
	}
	runFollower(ctx, id, clientAddr, peerAddr, *leaderAddress)
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: server <id> {leader|follower} <client_addr> <peer_addr> [--leader_address=<addr>]")
}

// splitPositionalArgs separates bare positional tokens from --flag tokens,
// since the CLI's flags (--leader_address) follow the positional id/role/
// address arguments rather than preceding them as the stdlib flag package
// expects.
func splitPositionalArgs(args []string) (positional, flags []string) {
	for i := 0; i < len(args); i++ {
		a := args[i]
		if len(a) >= 2 && a[:2] == "--" {
			flags = append(flags, a)
			continue
		}
		positional = append(positional, a)
	}
	return positional, flags
}

// httpPair is the pair of HTTP servers (peer-facing, client-facing) a node
// runs at any given time. Promotion stops one pair and starts another on
// the same addresses.
type httpPair struct {
	peer   *http.Server
	client *http.Server
	wg     sync.WaitGroup
}

func (p *httpPair) start(peerAddr string, peerEngine *gin.Engine, clientAddr string, clientEngine *gin.Engine) {
	p.peer = &http.Server{Addr: peerAddr, Handler: peerEngine}
	p.client = &http.Server{Addr: clientAddr, Handler: clientEngine}

	p.wg.Add(2)
	go func() {
		defer p.wg.Done()
		if err := listenWithRetry(p.peer); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: peer listener on %s: %v", peerAddr, err)
		}
	}()
	go func() {
		defer p.wg.Done()
		if err := listenWithRetry(p.client); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: client listener on %s: %v", clientAddr, err)
		}
	}()
}

func (p *httpPair) stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if p.peer != nil {
		_ = p.peer.Shutdown(ctx)
	}
	if p.client != nil {
		_ = p.client.Shutdown(ctx)
	}
	p.wg.Wait()
}

func listenWithRetry(srv *http.Server) error {
	var err error
	for attempt := 0; attempt < bindRetries; attempt++ {
		err = srv.ListenAndServe()
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return err
		}
		log.Printf("server: bind %s failed (attempt %d/%d): %v", srv.Addr, attempt+1, bindRetries, err)
		time.Sleep(bindRetryDelay)
	}
	return err
}

func runLeader(ctx context.Context, id, clientAddr, peerAddr string) {
	st := cluster.NewBootstrapStore(id)
	peers := cluster.NewPeerSet(id)
	leader := cluster.NewLeader(id, peerAddr, clientAddr, st, peers)
	leader.Start()

	pair := &httpPair{}
	pair.start(peerAddr, buildLeaderPeerEngine(leader), clientAddr, buildClientEngine(leader))

	log.Printf("server: node %s running as leader (client=%s peer=%s)", id, clientAddr, peerAddr)
	<-ctx.Done()
	log.Printf("server: node %s shutting down", id)
	leader.Stop()
	pair.stop()
}

func runFollower(ctx context.Context, id, clientAddr, peerAddr, leaderAddress string) {
	st := store.New(id)
	peers := cluster.NewPeerSet(id)
	follower := cluster.NewFollower(id, peerAddr, clientAddr, "", leaderAddress, st, peers)

	regCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	err := follower.Register(regCtx)
	cancel()
	if err != nil {
		log.Fatalf("server: node %s: initial registration with %s failed: %v", id, leaderAddress, err)
	}

	pair := &httpPair{}
	var mu sync.Mutex

	hooks := cluster.PromotionHooks{
		StopFollowerServers: func() {
			mu.Lock()
			defer mu.Unlock()
			pair.stop()
		},
		StartLeaderServers: func(leader *cluster.Leader) {
			mu.Lock()
			defer mu.Unlock()
			pair.start(peerAddr, buildLeaderPeerEngine(leader), clientAddr, buildClientEngine(leader))
		},
	}

	node := cluster.NewFollowerNode(id, peerAddr, clientAddr, follower, hooks)

	pair.start(peerAddr, buildFollowerPeerEngine(follower), clientAddr, buildNotLeaderEngine())

	go node.RunHeartbeatLoop(ctx)

	log.Printf("server: node %s running as follower of %s (client=%s peer=%s)", id, leaderAddress, clientAddr, peerAddr)
	<-ctx.Done()
	log.Printf("server: node %s shutting down", id)
	mu.Lock()
	pair.stop()
	mu.Unlock()
}

func buildLeaderPeerEngine(leader *cluster.Leader) *gin.Engine {
	r := gin.New()
	r.Use(api.Logger(), api.Recovery(), api.Semaphore(peerSemaphoreSize))
	api.RegisterLeaderPeerRoutes(r, leader)
	return r
}

func buildFollowerPeerEngine(follower *cluster.Follower) *gin.Engine {
	r := gin.New()
	r.Use(api.Logger(), api.Recovery(), api.Semaphore(peerSemaphoreSize))
	api.RegisterFollowerPeerRoutes(r, follower)
	return r
}

func buildClientEngine(leader *cluster.Leader) *gin.Engine {
	r := gin.New()
	r.Use(api.Logger(), api.Recovery(), api.Semaphore(clientSemaphoreSize))
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	api.NewClientHandler(leader, auth.NewBcryptHasher()).Register(r)
	return r
}

func buildNotLeaderEngine() *gin.Engine {
	r := gin.New()
	r.Use(api.Logger(), api.Recovery(), api.Semaphore(clientSemaphoreSize))
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	api.RegisterNotLeaderStub(r)
	return r
}
