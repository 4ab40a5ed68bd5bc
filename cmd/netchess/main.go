package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	appcfg "github.com/dexterws/netchess/internal/config"
	"github.com/dexterws/netchess/internal/domain"
	"github.com/dexterws/netchess/internal/link"
	"github.com/dexterws/netchess/internal/obslog"
	"github.com/dexterws/netchess/internal/rules"
	"github.com/dexterws/netchess/internal/session"
	"github.com/dexterws/netchess/internal/turn"
)

func main() {
	mode, err := parseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, "usage: netchess [--host [address] | --client [address]]")
		os.Exit(2)
	}

	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = obslog.L().Sync() }()

	var peer *link.Peer
	if mode.Networked() {
		ctx, cancel := context.WithCancel(context.Background())
		if mode.Kind == session.Hosting {
			fmt.Printf("waiting for a peer on %s ...\n", mode.Addr)
			peer, err = link.Listen(ctx, mode.Addr, cfg.InboundQueueSize)
		} else {
			peer, err = link.Dial(ctx, mode.Addr, cfg.InboundQueueSize)
		}
		cancel()
		if err != nil {
			log.Fatalf("connect error: %v", err)
		}
		defer peer.Close()
	}

	players, err := negotiate(peer, mode, cfg)
	if err != nil {
		log.Fatalf("negotiation error: %v", err)
	}

	engine := rules.NewGame()
	var coordLink turn.Link
	if peer != nil {
		coordLink = peer
	}
	coord := turn.New(engine, players, coordLink)

	fmt.Printf("session %s: you play %s\n", players.ID, players.Local().Color)
	printBoard(coord)

	inputCh := make(chan string, 8)
	go readInput(inputCh)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(cfg.TickInterval)
	defer ticker.Stop()

	prev := coord.Phase()
	for {
		select {
		case <-sigCh:
			fmt.Println("\nbye")
			return
		case line := <-inputCh:
			handleInput(coord, peer, mode, cfg, line)
		case <-ticker.C:
			if err := coord.Tick(); err != nil {
				obslog.L().Error("session_fatal", zap.Error(err))
				fmt.Println("connection lost, session over")
				return
			}
		}
		prev = report(coord, prev)
	}
}

// parseArgs maps the argument list onto a session mode. Anything besides
// --host [addr], --client [addr] or no arguments is a fatal usage error.
func parseArgs(args []string) (session.Mode, error) {
	switch {
	case len(args) == 0:
		return session.Mode{Kind: session.LocalOnly}, nil
	case args[0] == "--host" && len(args) <= 2:
		addr := appcfg.DefaultAddr
		if len(args) == 2 {
			addr = args[1]
		}
		return session.Mode{Kind: session.Hosting, Addr: addr}, nil
	case args[0] == "--client" && len(args) <= 2:
		addr := appcfg.DefaultAddr
		if len(args) == 2 {
			addr = args[1]
		}
		return session.Mode{Kind: session.Joining, Addr: addr}, nil
	default:
		return session.Mode{}, fmt.Errorf("unrecognized arguments: %s", strings.Join(args, " "))
	}
}

func negotiate(peer *link.Peer, mode session.Mode, cfg *appcfg.AppConfig) (*session.PlayerSet, error) {
	if !mode.Networked() {
		return session.NewLocalPair(cfg.DisplayName), nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), cfg.NegotiationTimeout)
	defer cancel()
	return session.Negotiate(ctx, peer, mode, cfg.DisplayName)
}

func readInput(out chan<- string) {
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		line := strings.ToLower(strings.TrimSpace(sc.Text()))
		if line != "" {
			out <- line
		}
	}
}

// handleInput is the thin local-input collaborator: it translates a typed
// command into a candidate move for the coordinator.
func handleInput(coord *turn.Coordinator, peer *link.Peer, mode session.Mode, cfg *appcfg.AppConfig, line string) {
	switch coord.Phase().Kind {
	case turn.PhaseAwaitingPromotion:
		if kind := domain.PieceFromUCI(line); kind != domain.NoPiece {
			if err := coord.ChoosePromotion(kind); err != nil {
				fmt.Println(err)
			}
			return
		}
		fmt.Println("choose promotion: q, r, b or n")
		return
	case turn.PhaseEnded:
		if line == "rematch" {
			players, err := negotiate(peer, mode, cfg)
			if err != nil {
				fmt.Println(err)
				return
			}
			if err := coord.Rematch(players); err != nil {
				fmt.Println(err)
				return
			}
			printBoard(coord)
			return
		}
		fmt.Println("game over; type rematch to play again")
		return
	}

	switch line {
	case "resign":
		if err := coord.SubmitLocal(domain.Move{Forfeit: true}); err != nil {
			fmt.Println(err)
		}
	default:
		mv, err := parseMove(line)
		if err != nil {
			fmt.Println(err)
			return
		}
		if err := coord.SubmitLocal(mv); err != nil {
			fmt.Println(err)
		}
	}
}

// parseMove reads a UCI-style move, optionally suffixed with a promotion
// letter or "draw" to attach a draw offer, e.g. "e2e4", "e7e8q",
// "e2e4 draw".
func parseMove(line string) (domain.Move, error) {
	fields := strings.Fields(line)
	offerDraw := len(fields) == 2 && fields[1] == "draw"
	uci := fields[0]
	if len(uci) < 4 || len(uci) > 5 {
		return domain.Move{}, fmt.Errorf("moves look like e2e4 or e7e8q")
	}
	from, err := domain.ParseSquare(uci[0:2])
	if err != nil {
		return domain.Move{}, err
	}
	to, err := domain.ParseSquare(uci[2:4])
	if err != nil {
		return domain.Move{}, err
	}
	mv := domain.Move{From: from, To: to, OfferDraw: offerDraw}
	if len(uci) == 5 {
		mv.Promotion = domain.PieceFromUCI(uci[4:5])
		if mv.Promotion == domain.NoPiece {
			return domain.Move{}, fmt.Errorf("bad promotion letter %q", uci[4:5])
		}
	}
	return mv, nil
}

// report prints view updates when the phase changes.
func report(coord *turn.Coordinator, prev turn.Phase) turn.Phase {
	cur := coord.Phase()
	if cur == prev {
		return prev
	}
	switch cur.Kind {
	case turn.PhaseAwaitingInput:
		printBoard(coord)
	case turn.PhaseAwaitingPromotion:
		fmt.Println("promotion: choose q, r, b or n")
	case turn.PhaseEnded:
		printBoard(coord)
		fmt.Printf("game over: %s (type rematch to play again)\n", cur.Result)
	case turn.PhaseLinkDown:
		fmt.Println("peer connection lost")
	}
	return cur
}

// printBoard renders the position from FEN. Pure display glue; the
// coordinator and rules engine stay the source of truth.
func printBoard(coord *turn.Coordinator) {
	fen := coord.Engine().FEN()
	placement := strings.SplitN(fen, " ", 2)[0]
	fmt.Println("  +-----------------+")
	for i, rank := range strings.Split(placement, "/") {
		fmt.Printf("%d | ", 8-i)
		for _, ch := range rank {
			if ch >= '1' && ch <= '8' {
				fmt.Print(strings.Repeat(". ", int(ch-'0')))
				continue
			}
			fmt.Printf("%c ", ch)
		}
		fmt.Println("|")
	}
	fmt.Println("  +-----------------+")
	fmt.Println("    a b c d e f g h")
	if coord.RemoteDrawOffer() {
		fmt.Println("peer offers a draw")
	}
	if coord.Phase().Kind == turn.PhaseAwaitingInput {
		if coord.OwnsCurrentTurn() {
			fmt.Printf("%s to move (you)\n", coord.Engine().Turn())
		} else {
			fmt.Printf("%s to move (peer), waiting...\n", coord.Engine().Turn())
		}
	}
}
