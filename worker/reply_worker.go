package worker

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"outreachly/config"
	"outreachly/models"
	"outreachly/store"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/sirupsen/logrus"
)

// ReplyWorker polls the outreach mailbox over IMAP and turns inbound
// mail from known prospects into reply events, which unblocks their
// response-gated sequence steps.
type ReplyWorker struct {
	Prospects  *store.ProspectStore
	Engagement *store.EngagementStore
	Executions *store.ExecutionStore
	IMAP       config.IMAPConfig
	Interval   time.Duration
	Logger     *logrus.Entry
}

func NewReplyWorker(prospects *store.ProspectStore, engagement *store.EngagementStore, executions *store.ExecutionStore, cfg config.IMAPConfig, interval time.Duration, logger *logrus.Entry) *ReplyWorker {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &ReplyWorker{
		Prospects:  prospects,
		Engagement: engagement,
		Executions: executions,
		IMAP:       cfg,
		Interval:   interval,
		Logger:     logger,
	}
}

func (rw *ReplyWorker) Start(ctx context.Context) {
	rw.Logger.Info("reply worker started")

	ticker := time.NewTicker(rw.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			rw.Logger.Info("reply worker shutting down")
			return
		case <-ticker.C:
			if err := rw.pollInbox(ctx); err != nil {
				rw.Logger.WithError(err).Error("reply poll failed")
			}
		}
	}
}

func (rw *ReplyWorker) pollInbox(ctx context.Context) error {
	imapAddr := fmt.Sprintf("%s:%d", rw.IMAP.Host, rw.IMAP.Port)

	var imapClient *client.Client
	var err error
	if rw.IMAP.Port == 993 {
		imapClient, err = client.DialTLS(imapAddr, &tls.Config{
			ServerName: rw.IMAP.Host,
		})
	} else {
		imapClient, err = client.Dial(imapAddr)
		if err == nil {
			err = imapClient.StartTLS(&tls.Config{
				ServerName: rw.IMAP.Host,
			})
		}
	}
	if err != nil {
		return fmt.Errorf("failed to connect to IMAP server: %w", err)
	}
	defer imapClient.Logout()

	if err := imapClient.Login(rw.IMAP.Username, rw.IMAP.Password); err != nil {
		return fmt.Errorf("failed to login to IMAP server: %w", err)
	}

	mailbox := rw.IMAP.Mailbox
	if mailbox == "" {
		mailbox = "INBOX"
	}
	if _, err := imapClient.Select(mailbox, false); err != nil {
		return fmt.Errorf("failed to select mailbox: %w", err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{"\\Seen"}
	ids, err := imapClient.Search(criteria)
	if err != nil {
		return fmt.Errorf("failed to search messages: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(ids...)

	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- imapClient.Fetch(seqset, []imap.FetchItem{imap.FetchEnvelope}, messages)
	}()

	for msg := range messages {
		if err := rw.processReply(ctx, msg); err != nil {
			rw.Logger.WithError(err).WithField("seq_num", msg.SeqNum).Warn("failed to process reply")
		}
	}
	if err := <-done; err != nil {
		return fmt.Errorf("error during fetch: %w", err)
	}

	// Mark the batch seen so the next poll starts fresh.
	item := imap.FormatFlagsOp(imap.AddFlags, true)
	if err := imapClient.Store(seqset, item, []interface{}{imap.SeenFlag}, nil); err != nil {
		rw.Logger.WithError(err).Warn("failed to mark messages seen")
	}
	return nil
}

// processReply matches the envelope sender against known prospects. Mail
// from unknown addresses is ignored.
func (rw *ReplyWorker) processReply(ctx context.Context, msg *imap.Message) error {
	if msg.Envelope == nil || len(msg.Envelope.From) == 0 {
		return nil
	}
	from := msg.Envelope.From[0]
	address := strings.ToLower(fmt.Sprintf("%s@%s", from.MailboxName, from.HostName))

	prospect, err := rw.Prospects.GetByEmail(ctx, address)
	if err != nil {
		return nil
	}

	receivedAt := msg.Envelope.Date
	if receivedAt.IsZero() {
		receivedAt = time.Now()
	}

	event := models.EngagementEvent{
		ProspectID: prospect.ID,
		Type:       models.EngagementReply,
		OccurredAt: receivedAt,
	}
	if err := rw.Engagement.Record(ctx, &event); err != nil {
		return fmt.Errorf("failed to record reply event: %w", err)
	}

	updated, err := rw.Executions.MarkResponded(ctx, prospect.ID, "", receivedAt)
	if err != nil {
		return fmt.Errorf("failed to mark executions responded: %w", err)
	}

	rw.Logger.WithFields(logrus.Fields{
		"prospect_id": prospect.ID,
		"executions":  updated,
		"subject":     msg.Envelope.Subject,
	}).Info("reply recorded")
	return nil
}
