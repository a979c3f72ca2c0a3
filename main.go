package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/mdp/qrterminal/v3"

	"github.com/post-kserks/messenger-client/api"
	"github.com/post-kserks/messenger-client/config"
	"github.com/post-kserks/messenger-client/crypto"
	"github.com/post-kserks/messenger-client/models"
	"github.com/post-kserks/messenger-client/push"
	"github.com/post-kserks/messenger-client/session"
	"github.com/post-kserks/messenger-client/storage"
)

func main() {
	cfg, cfgPath, err := config.LoadOrCreate()
	if err != nil {
		log.Fatalf("startup failed while loading config: %v", err)
	}

	token := os.Getenv("MESSENGER_TOKEN")
	if token == "" {
		log.Fatal("MESSENGER_TOKEN is required")
	}
	userID, err := strconv.Atoi(os.Getenv("MESSENGER_USER_ID"))
	if err != nil || userID <= 0 {
		log.Fatal("MESSENGER_USER_ID must be a positive integer")
	}
	username := os.Getenv("MESSENGER_USERNAME")

	identity, err := crypto.EnsureIdentity(cfg.PrivateKeyPath, cfg.PublicKeyPath)
	if err != nil {
		log.Fatalf("startup failed while preparing identity keypair: %v", err)
	}

	fmt.Printf("Client ID:       %s\n", cfg.ClientID)
	fmt.Printf("Server URL:      %s\n", cfg.ServerURL)
	fmt.Printf("Push URL:        %s\n", cfg.PushURL)
	fmt.Printf("Key Fingerprint: %s\n", identity.Fingerprint())
	fmt.Printf("Config File:     %s\n", cfgPath)
	dataDir := filepath.Dir(cfgPath)
	fmt.Printf("Data Directory:  %s\n", dataDir)

	// Print the fingerprint as a QR code so a contact can verify it out
	// of band from another device.
	qrterminal.GenerateHalfBlock(identity.Fingerprint(), qrterminal.L, os.Stdout)

	store, dbPath, err := storage.Open(dataDir)
	if err != nil {
		log.Fatalf("startup failed while opening database: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("database close error: %v", err)
		}
	}()
	fmt.Printf("Database File:   %s\n", dbPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	restAPI := api.NewClient(cfg.ServerURL, token)

	keys := crypto.NewKeyStore(restAPI)
	keys.SetIdentity(identity)
	if err := keys.PublishIdentity(ctx, userID); err != nil {
		log.Fatalf("startup failed while publishing public key: %v", err)
	}

	channel, err := push.Connect(ctx, cfg.PushURL, token)
	if err != nil {
		log.Fatalf("startup failed while connecting push channel: %v", err)
	}
	defer channel.Close()

	user := models.User{ID: userID, Username: username}
	ctrl := session.NewController(user, restAPI, keys, store, channel)

	if err := ctrl.LoadChats(ctx); err != nil {
		log.Fatalf("startup failed while loading chats: %v", err)
	}
	for _, chat := range ctrl.Chats() {
		marker := " "
		if chat.UnreadCount > 0 {
			marker = "*"
		}
		fmt.Printf("%s %4d  %-24s %s\n", marker, chat.ID, chat.Name, chat.LastMessageText)
	}

	go logPushErrors(channel.Errors())

	fmt.Println("Status:          running (press Ctrl+C to stop)")
	ctrl.Run(ctx, channel.Events())
	ctrl.WaitSends()
	fmt.Println("Status:          shutting down")
}

func logPushErrors(errs <-chan error) {
	for err := range errs {
		log.Printf("push: %v", err)
	}
}
