// Command linksaver is a small CLI over the link saver API: sign in once,
// then save and list links from the terminal.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/linksaver/linksaver/internal/client"
)

const usage = `Usage: linksaver [flags] <command> [args]

Commands:
  register <name> <email> <password>   create an account and sign in
  login <email> <password>             sign in
  logout                               sign out
  me                                   show the signed-in user
  save <url>                           save a link (remembered until login when signed out)
  list                                 list saved links
  delete <id>                          delete a saved link

Flags:
`

func main() {
	serverURL := flag.String("server", envOr("LINKSAVER_SERVER", "http://localhost:8000"), "API base URL")
	cookieMode := flag.Bool("cookie", false, "talk to a cookie-mode server")
	search := flag.String("search", "", "list: filter by search term")
	source := flag.String("source", "", "list: filter by source")
	category := flag.String("category", "", "list: filter by category")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	store, err := client.NewFileStore(credentialsPath())
	if err != nil {
		fatal(err)
	}

	var scheme client.CredentialScheme = client.BearerScheme{}
	if *cookieMode {
		scheme = client.CookieScheme{}
	}

	c := client.New(*serverURL, store, scheme)
	session := client.NewSession(c, store)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	switch args[0] {
	case "register":
		if len(args) != 4 {
			fatalUsage("register <name> <email> <password>")
		}
		result := session.SignUp(ctx, args[1], args[2], args[3])
		finishAuth(result)

	case "login":
		if len(args) != 3 {
			fatalUsage("login <email> <password>")
		}
		result := session.SignIn(ctx, args[1], args[2])
		finishAuth(result)

	case "logout":
		session.SignOut(ctx)
		fmt.Println("Signed out")

	case "me":
		user, err := c.Me(ctx)
		if err != nil {
			fatal(err)
		}
		fmt.Printf("%s <%s>\n", user.Name, user.Email)

	case "save":
		if len(args) != 2 {
			fatalUsage("save <url>")
		}
		session.Bootstrap(ctx)
		link, err := session.SaveLink(ctx, args[1])
		if err != nil {
			fatal(err)
		}
		if link == nil {
			fmt.Println("Not signed in; the link will be saved after your next login")
			return
		}
		printLink(*link)

	case "list":
		list, err := c.ListLinks(ctx, client.ListLinksOptions{
			Search:   *search,
			Source:   *source,
			Category: *category,
		})
		if err != nil {
			fatal(err)
		}
		for _, link := range list {
			printLink(link)
		}

	case "delete":
		if len(args) != 2 {
			fatalUsage("delete <id>")
		}
		if err := c.DeleteLink(ctx, args[1]); err != nil {
			fatal(err)
		}
		fmt.Println("Deleted")

	default:
		flag.Usage()
		os.Exit(2)
	}
}

func finishAuth(result client.Result) {
	if !result.Success {
		fatal(fmt.Errorf("%s", result.Message))
	}
	fmt.Println(result.Message)
	if result.PendingLink != nil {
		fmt.Println("Saved the link you tried to save earlier:")
		printLink(*result.PendingLink)
	}
}

func printLink(link client.SavedLink) {
	title := "(untitled)"
	if link.Title != nil {
		title = *link.Title
	}
	fmt.Printf("%s  [%s]  %s\n    %s\n", link.ID, link.Source, title, link.URL)
}

func credentialsPath() string {
	if path := os.Getenv("LINKSAVER_CREDENTIALS"); path != "" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".linksaver-credentials.json"
	}
	return filepath.Join(home, ".linksaver", "credentials.json")
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "Error:", err)
	os.Exit(1)
}

func fatalUsage(hint string) {
	fmt.Fprintln(os.Stderr, "Usage: linksaver", hint)
	os.Exit(2)
}
