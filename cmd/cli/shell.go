package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"attendtrack/internal/apiclient"
	"attendtrack/internal/apperr"
	"attendtrack/internal/attendance"
	"attendtrack/internal/calendar"
	"attendtrack/internal/dashboard"
	"attendtrack/internal/debounce"
	"attendtrack/internal/loginflow"
	"attendtrack/internal/prefs"
	"attendtrack/internal/softkey"
	"attendtrack/internal/student"
	"attendtrack/internal/subject"
)

const dashboardHelp = `commands:
  a                         attendance by section
  t <library_pe|remedial>   include/exclude a section in the overall figure
  e <section>               expand/collapse a section
  m <subject-id> <present|absent>   mark the selected date
  c [YYYY-MM-DD]            show the calendar, or click a date
  n | b                     next / previous month
  d <attendance-id>         delete an attendance record
  h <subject-id>            dates a subject was marked
  k [<subject-id> <ia> [score]]     show marks, or edit one (empty score clears)
  f [enroll|dismiss|delete <id>]    fingerprint devices
  o                         log out
  q                         quit`

type action int

const (
	stay action = iota
	logout
	quit
)

type shell struct {
	in     *bufio.Scanner
	out    io.Writer
	api    *apiclient.Client
	prefs  *prefs.Store
	key    *softkey.Authenticator
	flow   *loginflow.Flow
	loc    *time.Location
	clock  calendar.Clock
	timers debounce.Clock
}

func newShell(in *bufio.Scanner, out io.Writer, api *apiclient.Client, b prefs.Backend, loc *time.Location) *shell {
	s := &shell{
		in:    in,
		out:   out,
		api:   api,
		prefs: prefs.New(b),
		key:   softkey.New(b),
		loc:   loc,
	}
	s.key.Confirm = s.confirm
	s.flow = loginflow.New(s.prefs, api, api, s.key)
	return s
}

func (s *shell) readLine(prompt string) (string, bool) {
	fmt.Fprint(s.out, prompt)
	if !s.in.Scan() {
		return "", false
	}
	return strings.TrimSpace(s.in.Text()), true
}

func (s *shell) confirm(prompt string) bool {
	line, ok := s.readLine(prompt + " [y/N] ")
	return ok && strings.EqualFold(line, "y")
}

func (s *shell) printErr(err error) {
	if apperr.KindOf(err) == apperr.KindCeremony {
		fmt.Fprintf(s.out, "Fingerprint: %s. Log in with your password or try again.\n", err)
		return
	}
	fmt.Fprintln(s.out, "Error:", apperr.Message(err))
}

// Run alternates between the login surface and the dashboard until the user quits.
func (s *shell) Run(ctx context.Context) error {
	if err := s.api.Health(ctx); err != nil {
		fmt.Fprintln(s.out, "warning:", err)
	}
	for {
		id, ok := s.login(ctx)
		if !ok {
			return nil
		}
		again, err := s.dashboard(ctx, id)
		if err != nil || !again {
			return err
		}
	}
}

func (s *shell) login(ctx context.Context) (loginflow.Identity, bool) {
	s.flow.Load(ctx)
	for ctx.Err() == nil {
		v := s.flow.View()
		s.printLoginView(v)
		cmd, ok := s.readLine("> ")
		if !ok {
			return loginflow.Identity{}, false
		}

		var (
			id  loginflow.Identity
			err error
		)
		switch cmd {
		case "q", "quit":
			return loginflow.Identity{}, false
		case "s", "switch":
			s.flow.SwitchUser()
			continue
		case "r", "register":
			if err = s.register(ctx); err == nil {
				fmt.Fprintln(s.out, "Registration successful. Log in to continue.")
				continue
			}
		case "t", "tap":
			id, err = s.flow.OneTap(ctx)
		case "l", "login", "p":
			username := v.Username
			if !v.UsernameReadOnly {
				username, _ = s.readLine("USN: ")
			}
			password, _ := s.readLine("Password: ")
			id, err = s.flow.PasswordLogin(ctx, username, password)
		default:
			fmt.Fprintln(s.out, "unknown command")
			continue
		}
		if err != nil {
			s.printErr(err)
			continue
		}
		fmt.Fprintf(s.out, "Welcome, %s\n", id.Name)
		return id, true
	}
	return loginflow.Identity{}, false
}

func (s *shell) printLoginView(v loginflow.View) {
	switch v.State {
	case loginflow.RememberedWithCredential:
		fmt.Fprintf(s.out, "\nWelcome back, %s (%s)\n[t] 1-tap login  [s] switch user  [q] quit\n", v.Name, v.Username)
	case loginflow.RememberedNoCredential:
		fmt.Fprintf(s.out, "\nWelcome back, %s (%s)\n[p] password login  [s] switch user  [q] quit\n", v.Name, v.Username)
	default:
		fmt.Fprintln(s.out, "\n[l] login  [r] register  [q] quit")
	}
}

func (s *shell) register(ctx context.Context) error {
	var reg student.Registration
	fields := []struct {
		prompt string
		dst    *string
	}{
		{"USN: ", &reg.USN},
		{"Password (min 4 characters): ", &reg.Password},
		{"Full name: ", &reg.Name},
		{"Open elective name: ", &reg.OpenElective},
		{"Open elective code: ", &reg.OpenElectiveCode},
		{"AEC vertical name: ", &reg.AECVertical},
		{"AEC vertical code: ", &reg.AECVerticalCode},
	}
	for _, f := range fields {
		v, ok := s.readLine(f.prompt)
		if !ok {
			return apperr.Invalid("registration aborted")
		}
		*f.dst = v
	}
	return s.api.Register(ctx, reg)
}

func (s *shell) dashboard(ctx context.Context, id loginflow.Identity) (bool, error) {
	d := dashboard.New(dashboard.Config{
		API:      s.api,
		Prefs:    s.prefs,
		Enroller: s.key,
		Clock:    s.clock,
		Location: s.loc,
		Timers:   s.timers,
		OnWriteError: func(key string, err error) {
			fmt.Fprintf(s.out, "\nmarks %s not saved: %s\n", key, apperr.Message(err))
		},
	})
	if err := d.Load(ctx); err != nil {
		if errors.Is(err, apperr.ErrNotAuthenticated) {
			fmt.Fprintln(s.out, "Session expired, please log in again.")
			return true, nil
		}
		return false, err
	}
	if t := d.SchedulePrompt(func() {
		fmt.Fprintln(s.out, "\nSet up fingerprint login for faster access? Type 'f enroll' or 'f dismiss'.")
	}); t != nil {
		defer t.Stop()
	}

	s.printSummary(d)
	fmt.Fprintln(s.out, "type 'help' for commands")
	for {
		line, ok := s.readLine("attendtrack> ")
		if !ok {
			return false, d.FlushMarks(ctx)
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if fields[0] != "k" {
			// Leaving the marks input flushes its pending write.
			if err := d.FlushMarks(ctx); err != nil {
				s.printErr(err)
			}
		}
		act, err := s.dispatch(ctx, d, fields)
		if errors.Is(err, apperr.ErrNotAuthenticated) {
			fmt.Fprintln(s.out, "Session expired, please log in again.")
			return true, nil
		}
		if err != nil {
			s.printErr(err)
			continue
		}
		switch act {
		case logout:
			return true, nil
		case quit:
			return false, nil
		}
	}
}

func parseID(fields []string, i int) (int64, error) {
	if len(fields) <= i {
		return 0, apperr.Invalid("missing id")
	}
	id, err := strconv.ParseInt(fields[i], 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Invalid("invalid id %q", fields[i])
	}
	return id, nil
}

func (s *shell) dispatch(ctx context.Context, d *dashboard.Dashboard, fields []string) (action, error) {
	switch fields[0] {
	case "help", "?":
		fmt.Fprintln(s.out, dashboardHelp)
	case "a":
		s.printSummary(d)
	case "t":
		if len(fields) < 2 {
			return stay, apperr.Invalid("usage: t <library_pe|remedial>")
		}
		cat := subject.Category(fields[1])
		if cat != subject.LibraryPE && cat != subject.Remedial {
			return stay, apperr.Invalid("only library_pe and remedial can be toggled")
		}
		sum, err := d.Toggle(cat)
		if err != nil {
			return stay, err
		}
		fmt.Fprintf(s.out, "%s %s. Overall: %.2f%% (%s)\n", cat, onOff(d.Inclusion().Includes(cat)), sum.Overall, sum.OverallBand)
	case "e":
		if len(fields) < 2 {
			return stay, apperr.Invalid("usage: e <section>")
		}
		if err := d.ToggleExpanded(subject.Category(fields[1])); err != nil {
			return stay, err
		}
		s.printSummary(d)
	case "m":
		subjectID, err := parseID(fields, 1)
		if err != nil {
			return stay, err
		}
		if len(fields) < 3 {
			return stay, apperr.Invalid("usage: m <subject-id> <present|absent>")
		}
		rec, err := d.Mark(ctx, subjectID, attendance.Status(fields[2]))
		if err != nil {
			return stay, err
		}
		fmt.Fprintf(s.out, "Marked %s on %s\n", rec.Status, rec.Date)
		s.printSummary(d)
	case "c":
		if len(fields) > 1 {
			return stay, s.click(ctx, d, fields[1])
		}
		s.printGrid(d)
	case "n":
		if err := d.NextMonth(ctx); err != nil {
			return stay, err
		}
		s.printGrid(d)
	case "b":
		if err := d.PrevMonth(ctx); err != nil {
			return stay, err
		}
		s.printGrid(d)
	case "d":
		id, err := parseID(fields, 1)
		if err != nil {
			return stay, err
		}
		if !s.confirm(fmt.Sprintf("Delete attendance record %d?", id)) {
			return stay, nil
		}
		if err := d.DeleteAttendance(ctx, id); err != nil {
			return stay, err
		}
		fmt.Fprintln(s.out, "Attendance record deleted")
		s.printGrid(d)
	case "h":
		id, err := parseID(fields, 1)
		if err != nil {
			return stay, err
		}
		hist, err := d.SubjectHistory(ctx, id)
		if err != nil {
			return stay, err
		}
		s.printHistory(hist)
	case "k":
		if len(fields) == 1 {
			s.printMarks(d)
			return stay, nil
		}
		return stay, s.editMarks(d, fields)
	case "f":
		return stay, s.fingerprint(ctx, d, fields[1:])
	case "o", "logout":
		if err := s.api.Logout(ctx); err != nil {
			return stay, err
		}
		fmt.Fprintln(s.out, "Logged out")
		return logout, nil
	case "q", "quit":
		return quit, nil
	default:
		fmt.Fprintln(s.out, "unknown command, type 'help'")
	}
	return stay, nil
}

func onOff(on bool) string {
	if on {
		return "included"
	}
	return "excluded"
}

func (s *shell) click(ctx context.Context, d *dashboard.Dashboard, date string) error {
	out, entries, err := d.Click(ctx, date)
	if err != nil {
		return err
	}
	switch out {
	case calendar.Selected:
		fmt.Fprintf(s.out, "Selected %s\n", date)
	case calendar.OpenDetail:
		fmt.Fprintf(s.out, "Attendance on %s\n", date)
		w := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSUBJECT\tCODE\tSTATUS")
		for _, e := range entries {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", e.AttendanceID, e.SubjectName, e.SubjectCode, e.Status)
		}
		_ = w.Flush()
	default:
		fmt.Fprintln(s.out, "Nothing to do for that date")
	}
	return nil
}

func (s *shell) editMarks(d *dashboard.Dashboard, fields []string) error {
	subjectID, err := parseID(fields, 1)
	if err != nil {
		return err
	}
	if len(fields) < 3 {
		return apperr.Invalid("usage: k <subject-id> <ia> [score]")
	}
	ia, err := strconv.Atoi(fields[2])
	if err != nil {
		return apperr.Invalid("Invalid input")
	}
	var input string
	if len(fields) > 3 {
		input = fields[3]
	}
	if err := d.EditMarks(subjectID, ia, input); err != nil {
		return err
	}
	for _, m := range d.Marks() {
		if m.SubjectID == subjectID {
			fmt.Fprintf(s.out, "%s: avg %s, %s\n", m.SubjectName, m.Projection.Average, m.Projection.Message)
		}
	}
	return nil
}

func (s *shell) fingerprint(ctx context.Context, d *dashboard.Dashboard, args []string) error {
	if len(args) == 0 {
		creds, err := d.Credentials(ctx)
		if err != nil {
			return err
		}
		if len(creds) == 0 {
			fmt.Fprintln(s.out, "No fingerprint devices. Type 'f enroll' to add this one.")
			return nil
		}
		w := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tDEVICE\tREGISTERED")
		for _, c := range creds {
			fmt.Fprintf(w, "%s\t%s\t%s\n", c.ID, c.DeviceName, c.RegisteredAt.In(s.loc).Format("2006-01-02 15:04"))
		}
		return w.Flush()
	}
	switch args[0] {
	case "enroll":
		n, err := d.Enroll(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "Fingerprint registered successfully (%d device(s)). You can now use 1-tap login.\n", n)
	case "dismiss":
		if err := d.DismissPrompt(ctx); err != nil {
			return err
		}
		fmt.Fprintln(s.out, "OK, you can set it up later with 'f enroll'.")
	case "delete":
		if len(args) < 2 {
			return apperr.Invalid("usage: f delete <id>")
		}
		n, err := d.DeleteCredential(ctx, args[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "Credential deleted, %d remaining\n", n)
	default:
		return apperr.Invalid("usage: f [enroll|dismiss|delete <id>]")
	}
	return nil
}

func sectionTitle(c subject.Category) string {
	switch c {
	case subject.Theory:
		return "Theory"
	case subject.Lab:
		return "Labs"
	case subject.ProjectElective:
		return "Project & Electives"
	case subject.LibraryPE:
		return "Library / PE"
	case subject.Remedial:
		return "Remedial"
	}
	return string(c)
}

func (s *shell) printSummary(d *dashboard.Dashboard) {
	sum := d.Summary()
	sections := d.Sections()
	in := d.Inclusion()

	fmt.Fprintf(s.out, "\nOverall attendance: %.2f%% (%s)   selected date: %s\n", sum.Overall, sum.OverallBand, d.Selected())
	for _, cat := range subject.Categories {
		subs := sections[cat]
		if len(subs) == 0 {
			continue
		}
		title := sectionTitle(cat)
		if cat == subject.LibraryPE || cat == subject.Remedial {
			title += " [" + onOff(in.Includes(cat)) + "]"
		}
		open := cat == subject.Theory || d.Expanded(cat)
		marker := "+"
		if open {
			marker = "-"
		}
		fmt.Fprintf(s.out, "%s %s (%d)\n", marker, title, len(subs))
		if !open {
			continue
		}
		w := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
		for _, sc := range subs {
			fmt.Fprintf(w, "  %d\t%s\t%s\t%d/%d\t%.2f%%\t%s\n", sc.ID, sc.Name, sc.Code, sc.Present, sc.Total, sc.Percentage, sc.Band)
		}
		_ = w.Flush()
	}
}

func (s *shell) printGrid(d *dashboard.Dashboard) {
	g := d.Grid()
	selected := d.Selected()
	fmt.Fprintf(s.out, "\n%s %d\n", time.Month(g.Month), g.Year)
	fmt.Fprintln(s.out, "  Su    Mo    Tu    We    Th    Fr    Sa")
	for _, week := range g.Weeks() {
		var b strings.Builder
		for _, c := range week {
			if c.Blank() {
				b.WriteString("      ")
				continue
			}
			lb, rb := " ", " "
			if c.Date == selected {
				lb, rb = "[", "]"
			}
			mark := " "
			switch {
			case c.PresentPlus || c.AbsentPlus:
				mark = "+"
			case c.Marked:
				mark = "*"
			}
			fmt.Fprintf(&b, "%s%2d%s%s ", lb, c.Day, mark, rb)
		}
		fmt.Fprintln(s.out, strings.TrimRight(b.String(), " "))
	}
	fmt.Fprintln(s.out, "* attendance marked, + more than one record of a kind")
}

func (s *shell) printHistory(h attendance.SubjectHistory) {
	fmt.Fprintf(s.out, "%s (%s)\n", h.SubjectName, h.SubjectCode)
	if len(h.Dates) == 0 {
		fmt.Fprintln(s.out, "  no attendance recorded")
		return
	}
	w := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
	for _, sd := range h.Dates {
		fmt.Fprintf(w, "  %d\t%s\t%s\n", sd.AttendanceID, sd.Date, sd.Status)
	}
	_ = w.Flush()
}

func (s *shell) printMarks(d *dashboard.Dashboard) {
	w := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSUBJECT\tIA-1\tIA-2\tIA-3\tAVG\tTARGET")
	for _, m := range d.Marks() {
		scores := m.Scores()
		cols := make([]string, len(scores))
		for i, sc := range scores {
			cols[i] = "-"
			if sc != nil {
				cols[i] = strconv.FormatFloat(*sc, 'f', -1, 64)
			}
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n", m.SubjectID, m.SubjectName, cols[0], cols[1], cols[2], m.Projection.Average, m.Projection.Message)
	}
	_ = w.Flush()
}
