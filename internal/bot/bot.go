package bot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"log"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"taskbot/internal/auth"
	"taskbot/internal/config"
	croneval "taskbot/internal/cron"
	"taskbot/internal/model"
	"taskbot/internal/repository"
	"taskbot/internal/service"
)

const (
	sessionKindNewTask = "newtask"

	stageTitle    = "title"
	stageAssignee = "assignee"
	stageDeadline = "deadline"
)

// newTaskState is the JSON payload of a /newtask conversation session.
type newTaskState struct {
	Stage          string `json:"stage"`
	Title          string `json:"title"`
	AssigneeChatID int64  `json:"assignee_chat_id,omitempty"`
	Tag            string `json:"tag,omitempty"`
}

// Bot is the inbound control surface: it turns chat commands into
// calls on the task services and enforces ownership and role checks
// the services deliberately leave to their caller.
type Bot struct {
	api          *tgbotapi.BotAPI
	cfg          *config.Config
	userRepo     *repository.UserRepository
	sessionRepo  *repository.SessionRepository
	templateRepo *repository.TemplateRepository
	taskSvc      *service.TaskService
	reminderSvc  *service.ReminderService
}

func New(api *tgbotapi.BotAPI, cfg *config.Config, userRepo *repository.UserRepository, sessionRepo *repository.SessionRepository, templateRepo *repository.TemplateRepository, taskSvc *service.TaskService, reminderSvc *service.ReminderService) *Bot {
	return &Bot{
		api:          api,
		cfg:          cfg,
		userRepo:     userRepo,
		sessionRepo:  sessionRepo,
		templateRepo: templateRepo,
		taskSvc:      taskSvc,
		reminderSvc:  reminderSvc,
	}
}

// Start begins polling updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.api.GetUpdatesChan(updateConfig)

	log.Println("[info] start polling updates")

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	for update := range updates {
		if update.Message == nil || update.Message.From == nil {
			continue
		}
		if update.Message.Chat == nil || !update.Message.Chat.IsPrivate() {
			continue
		}
		if err := b.handleMessage(ctx, update.Message); err != nil {
			log.Printf("handle message: %v", err)
		}
	}

	return nil
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.IsCommand() {
		log.Printf("[info] command from %d: /%s %s", msg.From.ID, msg.Command(), msg.CommandArguments())
		return b.handleCommand(ctx, msg)
	}

	// Free text only makes sense inside a conversation session. Every
	// exchange, including a rejected input, keeps the session alive.
	err := b.sessionRepo.WithSession(ctx, msg.Chat.ID, b.cfg.SessionTTL, time.Now(),
		func(sess *model.Session) (repository.SessionAction, error) {
			return b.handleConversation(ctx, msg, sess)
		})
	if errors.Is(err, repository.ErrNoSession) {
		return b.sendText(msg.Chat.ID, "I didn't catch that. Use /newtask to add a task or /help for commands.")
	}
	return err
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) error {
	switch msg.Command() {
	case "start":
		return b.handleStart(ctx, msg)
	case "help":
		return b.handleHelp(msg)
	case "tasks":
		return b.handleListTasks(ctx, msg)
	case "newtask":
		return b.startNewTaskConversation(ctx, msg)
	case "complete":
		return b.handleComplete(ctx, msg)
	case "cancel":
		if err := b.sessionRepo.Delete(ctx, msg.Chat.ID); err != nil {
			return err
		}
		return b.sendText(msg.Chat.ID, "⏪ Input cancelled.")
	case "newtemplate":
		return b.requireCap(ctx, msg, auth.CapManageTemplates, b.handleNewTemplate)
	case "templates":
		return b.requireCap(ctx, msg, auth.CapManageTemplates, b.handleListTemplates)
	case "enabletemplate":
		return b.requireCap(ctx, msg, auth.CapManageTemplates, b.handleEnableTemplate(true))
	case "disabletemplate":
		return b.requireCap(ctx, msg, auth.CapManageTemplates, b.handleEnableTemplate(false))
	case "settags":
		return b.requireCap(ctx, msg, auth.CapManageUsers, b.handleSetTags)
	case "sweep":
		return b.requireCap(ctx, msg, auth.CapRunSweeps, b.handleSweep)
	default:
		return b.sendText(msg.Chat.ID, "Unknown command. See /help.")
	}
}

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) error {
	if _, err := b.ensureUser(ctx, msg.From); err != nil {
		return err
	}

	name := strings.TrimSpace(msg.From.FirstName)
	if name == "" {
		name = "there"
	}

	text := fmt.Sprintf(
		"👋 Hi, %s!\n<b>I track team tasks and nag about them so you don't have to.</b>\n\nCommands:\n"+
			"• /newtask — create a task\n"+
			"• /tasks — your pending tasks\n"+
			"• /complete &lt;id&gt; &lt;proof&gt; — mark a task done\n"+
			"• /cancel — abort the current input\n"+
			"• /help — more hints",
		escape(name),
	)
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleHelp(msg *tgbotapi.Message) error {
	text := "ℹ️ <b>Hints</b>\n" +
		"• /newtask — step-by-step task creation; assign to <code>@user</code> or a pool via <code>tag:finance</code>\n" +
		"• /tasks — your pending tasks with deadlines\n" +
		"• /complete &lt;id&gt; &lt;proof&gt; — close a task with a short proof of completion\n" +
		"• /cancel — abort the current input\n\n" +
		"Admin:\n" +
		"• /newtemplate name | title | target | cron | timezone | deadline-days\n" +
		"• /templates, /enabletemplate &lt;id&gt;, /disabletemplate &lt;id&gt;\n" +
		"• /settags @user tag1,tag2\n" +
		"• /sweep — run a reminder sweep now"
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleListTasks(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}

	tasks, err := b.taskSvc.GetUserPendingTasks(ctx, user.ID, user.ChatID)
	if err != nil {
		return b.sendText(msg.Chat.ID, "Couldn't load your tasks, try again later.")
	}
	if len(tasks) == 0 {
		return b.sendText(msg.Chat.ID, "🎉 Nothing pending.")
	}

	now := time.Now()
	var sb strings.Builder
	sb.WriteString("📋 <b>Your pending tasks</b>\n")
	for _, task := range tasks {
		sb.WriteString(formatTaskLine(task, now))
	}
	return b.sendText(msg.Chat.ID, strings.TrimSpace(sb.String()))
}

func (b *Bot) startNewTaskConversation(ctx context.Context, msg *tgbotapi.Message) error {
	if _, err := b.ensureUser(ctx, msg.From); err != nil {
		return err
	}
	if err := b.putState(ctx, msg.Chat.ID, newTaskState{Stage: stageTitle}); err != nil {
		return err
	}
	return b.sendText(msg.Chat.ID, "🆕 New task.\n<b>Step 1:</b> what's the title?")
}

func (b *Bot) handleConversation(ctx context.Context, msg *tgbotapi.Message, sess *model.Session) (repository.SessionAction, error) {
	if sess.Kind != sessionKindNewTask {
		return repository.SessionClear, nil
	}

	var state newTaskState
	if err := json.Unmarshal([]byte(sess.Payload), &state); err != nil {
		// Unreadable session, drop it rather than wedging the chat.
		return repository.SessionClear, nil
	}

	text := strings.TrimSpace(msg.Text)
	switch state.Stage {
	case stageTitle:
		if text == "" {
			return repository.SessionKeep, b.sendText(msg.Chat.ID, "The title can't be empty.")
		}
		state.Title = text
		state.Stage = stageAssignee
		if err := stampState(sess, state); err != nil {
			return repository.SessionClear, err
		}
		return repository.SessionKeep, b.sendText(msg.Chat.ID, "👤 Who takes it? Send <code>me</code>, <code>@username</code>, or <code>tag:finance</code> to auto-assign by workload.")

	case stageAssignee:
		switch {
		case strings.EqualFold(text, "me"):
			state.AssigneeChatID = msg.From.ID
		case strings.HasPrefix(strings.ToLower(text), "tag:"):
			state.Tag = strings.TrimSpace(text[len("tag:"):])
			if state.Tag == "" {
				return repository.SessionKeep, b.sendText(msg.Chat.ID, "Which tag? Try <code>tag:finance</code>.")
			}
		case strings.HasPrefix(text, "@"):
			assignee, err := b.userRepo.FindByUsername(ctx, text)
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return repository.SessionKeep, b.sendText(msg.Chat.ID, "I don't know that user. They need to /start me first.")
			}
			if err != nil {
				return repository.SessionKeep, err
			}
			state.AssigneeChatID = assignee.ChatID
		default:
			return repository.SessionKeep, b.sendText(msg.Chat.ID, "Send <code>me</code>, <code>@username</code>, or <code>tag:&lt;name&gt;</code>.")
		}
		state.Stage = stageDeadline
		if err := stampState(sess, state); err != nil {
			return repository.SessionClear, err
		}
		return repository.SessionKeep, b.sendText(msg.Chat.ID, fmt.Sprintf("⏰ Deadline in how many days? Send a number, or <code>skip</code> for the default (%d).", b.cfg.DefaultDeadline))

	case stageDeadline:
		days := b.cfg.DefaultDeadline
		if !strings.EqualFold(text, "skip") {
			n, err := strconv.Atoi(text)
			if err != nil || n < 0 || n > 365 {
				return repository.SessionKeep, b.sendText(msg.Chat.ID, "Days must be a number between 0 and 365, or <code>skip</code>.")
			}
			days = n
		}
		return repository.SessionClear, b.finishTaskCreation(ctx, msg, state, days)

	default:
		return repository.SessionClear, nil
	}
}

func (b *Bot) finishTaskCreation(ctx context.Context, msg *tgbotapi.Message, state newTaskState, deadlineDays int) error {
	input := service.TaskInput{
		Title:          state.Title,
		CreatorChatID:  msg.From.ID,
		AssigneeChatID: state.AssigneeChatID,
		Tag:            state.Tag,
		ReporterChatID: msg.From.ID,
		DeadlineDays:   deadlineDays,
		RemindInterval: b.cfg.DefaultReminder,
	}

	task, err := b.taskSvc.CreateTask(ctx, input, time.Now())
	switch {
	case errors.Is(err, service.ErrEmptyTag):
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Nobody carries the tag <i>%s</i>; the task was not created.", escape(state.Tag)))
	case errors.Is(err, service.ErrInvalidAssignee):
		return b.sendText(msg.Chat.ID, "I can't resolve that assignee; the task was not created.")
	case err != nil:
		return b.sendText(msg.Chat.ID, "Something went wrong creating the task, try again later.")
	}

	who := fmt.Sprintf("user %d", task.AssigneeChatID)
	if task.TargetTag != "" {
		who = fmt.Sprintf("%s via <i>%s</i>", who, escape(task.TargetTag))
	}
	return b.sendText(msg.Chat.ID, fmt.Sprintf("✅ Task #%d created and assigned to %s.", task.ID, who))
}

func (b *Bot) handleComplete(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}

	args := strings.Fields(msg.CommandArguments())
	if len(args) == 0 {
		return b.sendText(msg.Chat.ID, "Usage: /complete &lt;id&gt; &lt;proof&gt;")
	}
	taskID, err := strconv.Atoi(args[0])
	if err != nil || taskID <= 0 {
		return b.sendText(msg.Chat.ID, "The task id must be a number, e.g. /complete 3 shipped")
	}
	proof := strings.TrimSpace(strings.Join(args[1:], " "))

	// Ownership check lives here, not in the service: only the
	// assignee may complete, and outsiders get the same answer as for
	// an unknown id.
	task, err := b.taskSvc.GetTask(ctx, uint(taskID))
	if err == nil && task.AssigneeChatID != user.ChatID && task.AssigneeUserID != user.ID {
		err = service.ErrNotFoundOrCompleted
	}
	if err == nil {
		_, err = b.taskSvc.CompleteTask(ctx, uint(taskID), proof, time.Now())
	}

	switch {
	case errors.Is(err, service.ErrNotFoundOrCompleted):
		return b.sendText(msg.Chat.ID, "No such task, or it's already done.")
	case err != nil:
		return b.sendText(msg.Chat.ID, "Couldn't complete the task, try again later.")
	}
	return b.sendText(msg.Chat.ID, fmt.Sprintf("🏁 Task #%d completed. Nice.", taskID))
}

// requireCap resolves the caller's capabilities and either runs the
// handler or answers with a refusal. Config-listed admins get a full
// override regardless of their stored role.
func (b *Bot) requireCap(ctx context.Context, msg *tgbotapi.Message, capability auth.Capability, handler func(context.Context, *tgbotapi.Message) error) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}

	var overrides map[auth.Capability]bool
	if b.cfg.IsAdmin(user.ChatID) {
		overrides = map[auth.Capability]bool{
			auth.CapManageTemplates: true,
			auth.CapManageUsers:     true,
			auth.CapRunSweeps:       true,
		}
	}
	if !auth.Effective(user.Role, overrides).Has(capability) {
		return b.sendText(msg.Chat.ID, "That command needs admin rights.")
	}
	return handler(ctx, msg)
}

func (b *Bot) handleNewTemplate(ctx context.Context, msg *tgbotapi.Message) error {
	parts := strings.Split(msg.CommandArguments(), "|")
	if len(parts) != 6 {
		return b.sendText(msg.Chat.ID,
			"Usage: /newtemplate name | title | target | cron | timezone | deadline-days\n"+
				"Target is <code>@user</code>, a chat id, or <code>tag:finance</code>.")
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	tpl := model.TaskTemplate{
		Name:           parts[0],
		Title:          parts[1],
		CronExpr:       parts[3],
		Timezone:       parts[4],
		ReporterChatID: msg.From.ID,
		RemindInterval: b.cfg.DefaultReminder,
		Enabled:        true,
	}

	days, err := strconv.Atoi(parts[5])
	if err != nil || days < 0 {
		return b.sendText(msg.Chat.ID, "Deadline-days must be a non-negative number.")
	}
	tpl.DeadlineDays = days

	target := parts[2]
	switch {
	case strings.HasPrefix(strings.ToLower(target), "tag:"):
		tpl.TargetTag = strings.TrimSpace(target[len("tag:"):])
	case strings.HasPrefix(target, "@"):
		assignee, err := b.userRepo.FindByUsername(ctx, target)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return b.sendText(msg.Chat.ID, "I don't know that user yet.")
		}
		if err != nil {
			return err
		}
		tpl.TargetChatID = assignee.ChatID
	default:
		id, err := strconv.ParseInt(target, 10, 64)
		if err != nil {
			return b.sendText(msg.Chat.ID, "Target must be @user, a chat id, or tag:&lt;name&gt;.")
		}
		tpl.TargetChatID = id
	}

	// Validate the schedule up front so a typo surfaces here and not
	// in the runner's logs at 3am.
	if _, err := croneval.Parse(tpl.CronExpr, tpl.Timezone); err != nil {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Bad schedule: %s", escape(err.Error())))
	}

	if err := b.templateRepo.Create(ctx, &tpl); err != nil {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Couldn't save the template: %s", escape(err.Error())))
	}
	return b.sendText(msg.Chat.ID, fmt.Sprintf("📆 Template #%d <b>%s</b> saved (%s, %s).",
		tpl.ID, escape(tpl.Name), escape(tpl.CronExpr), escape(tpl.Timezone)))
}

func (b *Bot) handleListTemplates(ctx context.Context, msg *tgbotapi.Message) error {
	tpls, err := b.templateRepo.ListAll(ctx)
	if err != nil {
		return b.sendText(msg.Chat.ID, "Couldn't load templates.")
	}
	if len(tpls) == 0 {
		return b.sendText(msg.Chat.ID, "No templates yet. Add one with /newtemplate.")
	}

	var sb strings.Builder
	sb.WriteString("📆 <b>Templates</b>\n")
	for _, tpl := range tpls {
		status := "on"
		if !tpl.Enabled {
			status = "off"
		}
		target := fmt.Sprintf("user %d", tpl.TargetChatID)
		if tpl.TargetTag != "" {
			target = "tag:" + tpl.TargetTag
		}
		sb.WriteString(fmt.Sprintf("#%d %s — <code>%s</code> %s → %s [%s]\n",
			tpl.ID, escape(tpl.Name), escape(tpl.CronExpr), escape(tpl.Timezone), escape(target), status))
	}
	return b.sendText(msg.Chat.ID, strings.TrimSpace(sb.String()))
}

func (b *Bot) handleEnableTemplate(enabled bool) func(context.Context, *tgbotapi.Message) error {
	return func(ctx context.Context, msg *tgbotapi.Message) error {
		id, err := strconv.Atoi(strings.TrimSpace(msg.CommandArguments()))
		if err != nil || id <= 0 {
			return b.sendText(msg.Chat.ID, "Send the template id, e.g. /enabletemplate 2")
		}
		if err := b.templateRepo.SetEnabled(ctx, uint(id), enabled); err != nil {
			return b.sendText(msg.Chat.ID, "No such template.")
		}
		state := "enabled"
		if !enabled {
			state = "disabled"
		}
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Template #%d %s.", id, state))
	}
}

func (b *Bot) handleSetTags(ctx context.Context, msg *tgbotapi.Message) error {
	args := strings.Fields(msg.CommandArguments())
	if len(args) != 2 || !strings.HasPrefix(args[0], "@") {
		return b.sendText(msg.Chat.ID, "Usage: /settags @user tag1,tag2")
	}

	target, err := b.userRepo.FindByUsername(ctx, args[0])
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return b.sendText(msg.Chat.ID, "I don't know that user yet.")
	}
	if err != nil {
		return err
	}

	var tags []string
	for _, t := range strings.Split(args[1], ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	if err := b.userRepo.SetTags(ctx, target.ID, tags); err != nil {
		return b.sendText(msg.Chat.ID, "Couldn't update tags.")
	}
	return b.sendText(msg.Chat.ID, fmt.Sprintf("🏷 %s now carries: %s", escape(args[0]), escape(strings.Join(tags, ", "))))
}

func (b *Bot) handleSweep(ctx context.Context, msg *tgbotapi.Message) error {
	sent, err := b.reminderSvc.Sweep(ctx, time.Now())
	if err != nil {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Sweep failed: %s", escape(err.Error())))
	}
	return b.sendText(msg.Chat.ID, fmt.Sprintf("🔔 Sweep done, %d notification(s) sent.", sent))
}

func (b *Bot) ensureUser(ctx context.Context, from *tgbotapi.User) (*model.User, error) {
	return b.userRepo.Upsert(ctx, from.ID, from.FirstName, from.LastName, from.UserName)
}

func (b *Bot) putState(ctx context.Context, chatID int64, state newTaskState) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	sess := &model.Session{
		Key:     uuid.NewString(),
		ChatID:  chatID,
		Kind:    sessionKindNewTask,
		Payload: string(payload),
	}
	return b.sessionRepo.Put(ctx, sess, b.cfg.SessionTTL, time.Now())
}

// stampState writes the conversation state back into the session row so
// the surrounding WithSession call persists it.
func stampState(sess *model.Session, state newTaskState) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	sess.Payload = string(payload)
	return nil
}

func (b *Bot) sendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

func formatTaskLine(task model.Task, now time.Time) string {
	var sb strings.Builder

	icon := "🟢"
	if task.Deadline != nil {
		switch {
		case now.After(*task.Deadline):
			icon = "⚠️"
		case task.Deadline.Sub(now) <= 48*time.Hour:
			icon = "⏳"
		}
	}

	sb.WriteString(fmt.Sprintf("%s #%d %s", icon, task.ID, escape(task.Title)))
	if task.TargetTag != "" {
		sb.WriteString(fmt.Sprintf(" <i>(%s)</i>", escape(task.TargetTag)))
	}
	if task.Deadline != nil {
		d := *task.Deadline
		if now.After(d) {
			sb.WriteString(fmt.Sprintf("\n   ⏰ was due %s — <b>overdue</b>", d.Format("2006-01-02")))
		} else {
			sb.WriteString(fmt.Sprintf("\n   ⏰ due %s", d.Format("2006-01-02")))
		}
	}
	sb.WriteByte('\n')
	return sb.String()
}

func escape(s string) string {
	return html.EscapeString(strings.TrimSpace(s))
}
