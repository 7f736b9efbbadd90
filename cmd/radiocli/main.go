// Package main provides the command-line client of the radio server.
package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"

	"github.com/osa030/19radio/internal/app/notification"
	"github.com/osa030/19radio/internal/app/priority"
	"github.com/osa030/19radio/internal/app/queue"
	"github.com/osa030/19radio/internal/app/radio"
	"github.com/osa030/19radio/internal/app/session"
	"github.com/osa030/19radio/internal/domain/content"
)

var (
	app     = kingpin.New("19radio-cli", "19radio command-line client")
	server  = app.Flag("server", "Server address").Default("http://localhost:8080").Envar("RADIO_SERVER").String()
	sess    = app.Flag("session", "Session ID").Short('s').Envar("RADIO_SESSION").String()
	user    = app.Flag("user", "Your user ID").Short('u').Envar("RADIO_USER").String()
	name    = app.Flag("name", "Your display name").Envar("RADIO_NAME").String()
	token   = app.Flag("token", "Admin token (or set ADMIN_TOKEN env)").Envar("ADMIN_TOKEN").String()
	timeout = app.Flag("timeout", "Request timeout").Default("10s").Duration()

	sessionsCmd = app.Command("sessions", "List sessions")
	nowCmd      = app.Command("now", "Show what is playing")
	skipCmd     = app.Command("skip", "Vote to skip the current item")
	onCmd       = app.Command("on", "Switch the radio on (admin)")
	offCmd      = app.Command("off", "Switch the radio off (admin)")
	anotherCmd  = app.Command("another", "Play another item now (admin)")

	volumeCmd     = app.Command("volume", "Set the volume (admin)")
	volumePercent = volumeCmd.Arg("percent", "Volume in percent").Required().Int()

	requestCmd = app.Command("request", "Request an item")
	requestRef = requestCmd.Arg("ref", "Item id prefix, or ^N for the N-th last played").Required().String()

	demandCmd = app.Command("demand", "Queue an item at the head")
	demandRef = demandCmd.Arg("ref", "Item id prefix, or ^N for the N-th last played").Required().String()

	withdrawCmd = app.Command("withdraw", "Withdraw your requests")
	withdrawRef = withdrawCmd.Arg("ref", "Item to withdraw (default: all of yours)").String()

	nextCmd     = app.Command("next", "Preview the best scored items")
	nextN       = nextCmd.Flag("n", "Number of items").Default("5").Int()
	nextExplain = nextCmd.Flag("explain", "Show the score after each term").Bool()

	queueCmd   = app.Command("queue", "Show the request queue")
	historyCmd = app.Command("history", "Show recently played items")

	priorityCmd        = app.Command("priority", "Manage keyword preferences")
	priorityListCmd    = priorityCmd.Command("list", "List your preferences").Default()
	prioritySetCmd     = priorityCmd.Command("set", "Set a preference")
	prioritySetKeyword = prioritySetCmd.Arg("keyword", "Keyword").Required().String()
	prioritySetLevel   = prioritySetCmd.Arg("level", "high or low").Required().Enum("high", "low")
	priorityClearCmd   = priorityCmd.Command("clear", "Clear a preference")
	priorityClearKw    = priorityClearCmd.Arg("keyword", "Keyword").Required().String()

	rateCmd    = app.Command("rate", "Rate an item")
	rateRef    = rateCmd.Arg("ref", "Item reference").Required().String()
	rateRating = rateCmd.Arg("rating", "1, -1, or 0 to clear").Required().Int()

	presenceCmd      = app.Command("presence", "Feed a presence event (admin)")
	presenceKind     = presenceCmd.Arg("kind", "join, leave, voice_state, remove, offline, output_mute").Required().String()
	presenceUser     = presenceCmd.Arg("user", "Participant ID").String()
	presenceName     = presenceCmd.Flag("display-name", "Participant display name").String()
	presenceMuted    = presenceCmd.Flag("muted", "Self-muted").Bool()
	presenceDeafened = presenceCmd.Flag("deafened", "Self-deafened").Bool()

	subscribeCmd = app.Command("subscribe", "Stream notifications")
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))
	c := &client{base: strings.TrimRight(*server, "/"), user: *user, name: *name, token: *token, timeout: *timeout}

	if command != sessionsCmd.FullCommand() && *sess == "" {
		fail(fmt.Errorf("session is required (use --session or RADIO_SESSION env)"))
	}
	path := "/sessions/" + url.PathEscape(*sess)

	var err error
	switch command {
	case sessionsCmd.FullCommand():
		var infos []session.Info
		if err = c.get("/sessions", &infos); err == nil {
			for _, i := range infos {
				fmt.Printf("%-20s %s\n", i.ID, i.Title)
			}
		}
	case nowCmd.FullCommand():
		var np radio.NowPlaying
		if err = c.get(path+"/now", &np); err == nil {
			printNow(np)
		}
	case skipCmd.FullCommand():
		err = c.command(path+"/skip", nil)
	case onCmd.FullCommand():
		err = c.command(path+"/on", nil)
	case offCmd.FullCommand():
		err = c.command(path+"/off", nil)
	case anotherCmd.FullCommand():
		err = c.command(path+"/another", nil)
	case volumeCmd.FullCommand():
		err = c.command(path+"/volume", map[string]any{"percent": *volumePercent})
	case requestCmd.FullCommand():
		err = c.command(path+"/request", map[string]any{"ref": *requestRef})
	case demandCmd.FullCommand():
		err = c.command(path+"/demand", map[string]any{"ref": *demandRef})
	case withdrawCmd.FullCommand():
		err = c.command(path+"/withdraw", map[string]any{"ref": *withdrawRef})
	case nextCmd.FullCommand():
		var candidates []radio.Candidate
		q := url.Values{"n": {strconv.Itoa(*nextN)}, "explain": {strconv.FormatBool(*nextExplain)}}
		if err = c.get(path+"/next?"+q.Encode(), &candidates); err == nil {
			printCandidates(candidates)
		}
	case queueCmd.FullCommand():
		var entries []queue.Entry
		if err = c.get(path+"/queue", &entries); err == nil {
			for i, e := range entries {
				fmt.Printf("%2d. %s  (by %s)\n", i, formatItem(e.Item), e.RequesterID)
			}
		}
	case historyCmd.FullCommand():
		var items []*content.Item
		if err = c.get(path+"/history", &items); err == nil {
			for i, item := range items {
				fmt.Printf("^%d  %s\n", i+1, formatItem(item))
			}
		}
	case priorityListCmd.FullCommand():
		var levels []radio.KeywordLevel
		if err = c.get(path+"/priority", &levels); err == nil {
			for _, l := range levels {
				fmt.Printf("%-5s %s\n", l.Level, l.Keyword)
			}
		}
	case prioritySetCmd.FullCommand():
		err = c.command(path+"/priority", map[string]any{"keyword": *prioritySetKeyword, "level": *prioritySetLevel})
	case priorityClearCmd.FullCommand():
		err = c.delete(path + "/priority?" + url.Values{"keyword": {*priorityClearKw}}.Encode())
	case rateCmd.FullCommand():
		err = c.command(path+"/rate", map[string]any{"ref": *rateRef, "rating": *rateRating})
	case presenceCmd.FullCommand():
		err = c.command(path+"/presence", map[string]any{
			"kind":          *presenceKind,
			"user_id":       *presenceUser,
			"display_name":  *presenceName,
			"self_muted":    *presenceMuted,
			"self_deafened": *presenceDeafened,
		})
	case subscribeCmd.FullCommand():
		err = c.subscribe(context.Background(), path+"/notifications", printNotification)
	}
	if err != nil {
		fail(err)
	}
}

func fail(err error) {
	fmt.Printf("Error: %v\n", err)
	os.Exit(1)
}

func formatItem(item *content.Item) string {
	if item == nil {
		return "-"
	}
	title := item.Name
	if item.Author != "" {
		title = item.Author + " - " + item.Name
	}
	return fmt.Sprintf("%s  %s [%s]", item.ShortID(), title, item.Length.Round(time.Second))
}

func printNow(np radio.NowPlaying) {
	power := "on"
	if !np.Enabled {
		power = "off"
	}
	fmt.Printf("State:     %s (radio %s, volume %d%%)\n", np.State, power, np.Volume)
	if np.Item != nil {
		fmt.Printf("Item:      %s\n", formatItem(np.Item))
		fmt.Printf("Position:  %s / %s\n", np.Position.Round(time.Second), np.Item.Length.Round(time.Second))
		fmt.Printf("Votes:     %d\n", np.Votes)
	}
	fmt.Printf("Listeners: %s\n", strings.Join(np.Listeners, ", "))
}

func printCandidates(candidates []radio.Candidate) {
	for i, c := range candidates {
		fmt.Printf("%2d. %8.3f  %s\n", i+1, c.Score, formatItem(c.Item))
		printSteps(c.Steps)
	}
}

func printSteps(steps []priority.Step) {
	for _, s := range steps {
		fmt.Printf("      %-24s %8.3f\n", s.Term, s.Score)
	}
}

func printNotification(n *notification.Notification) {
	ts := n.Timestamp.Local().Format(time.TimeOnly)
	switch n.Type {
	case notification.TypeNowPlaying:
		fmt.Printf("[%s] #%d now playing: %s (from %s)\n", ts, n.SequenceNo, formatItem(n.Item), n.Offset.Round(time.Second))
	case notification.TypeTrackEnded:
		fmt.Printf("[%s] #%d ended: %s\n", ts, n.SequenceNo, formatItem(n.Item))
	case notification.TypeQueueEmpty:
		fmt.Printf("[%s] #%d nothing to play\n", ts, n.SequenceNo)
	default:
		fmt.Printf("[%s] #%d state: %s\n", ts, n.SequenceNo, n.State)
	}
}
