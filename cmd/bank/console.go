package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/n0ct4/secure-bank-final/internal/account"
	"github.com/n0ct4/secure-bank-final/internal/bank"
	"github.com/n0ct4/secure-bank-final/internal/session"
	"github.com/n0ct4/secure-bank-final/pkg/exception"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
)

const consoleHelp = `commands:
  accounts
  login <account> <pin>
  deposit <session> <amount>
  withdraw <session> <amount>
  transfer <session> <destination> <amount>
  balance <session>
  logout <session>
  sessions
  exit`

// console is the line dispatcher in front of the session supervisor.
type console struct {
	sup   *session.Supervisor
	table *account.Table
	out   io.Writer
}

func newConsole(sup *session.Supervisor, table *account.Table, out io.Writer) *console {
	return &console{sup: sup, table: table, out: out}
}

// run reads commands until exit, EOF or ctx is done.
func (c *console) run(ctx context.Context, in io.Reader) error {
	sc := bufio.NewScanner(in)
	fmt.Fprintln(c.out, consoleHelp)
	for sc.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		exit, err := c.exec(ctx, sc.Text())
		if err != nil {
			fmt.Fprintf(c.out, "error: %s\n", err.Error())
		}
		if exit {
			return nil
		}
	}
	return sc.Err()
}

func (c *console) exec(ctx context.Context, line string) (bool, error) {
	args := strings.Fields(line)
	if len(args) == 0 {
		return false, nil
	}

	cmd, args := strings.ToLower(args[0]), args[1:]
	switch cmd {
	case "exit", "quit":
		return true, nil
	case "help":
		fmt.Fprintln(c.out, consoleHelp)
		return false, nil
	case "accounts":
		return false, c.accounts(ctx)
	case "sessions":
		c.sessions()
		return false, nil
	case "login":
		return false, c.login(ctx, args)
	case "logout":
		return false, c.logout(ctx, args)
	case "deposit", "withdraw":
		return false, c.move(ctx, cmd, args)
	case "transfer":
		return false, c.transfer(ctx, args)
	case "balance":
		return false, c.balance(ctx, args)
	default:
		return false, errors.Wrapf(exception.ErrInvalidArgument, "unknown command %q", cmd)
	}
}

func (c *console) accounts(ctx context.Context) error {
	list, err := c.table.List(ctx)
	if err != nil {
		return err
	}
	for _, a := range list {
		state := ""
		if a.Locked {
			state = " (locked)"
		}
		fmt.Fprintf(c.out, "%d  %-30s %12s%s\n", a.Number, a.Holder, a.Balance.StringFixed(2), state)
	}
	return nil
}

func (c *console) sessions() {
	infos := c.sup.Sessions()
	if len(infos) == 0 {
		fmt.Fprintln(c.out, "no open sessions")
		return
	}
	for _, info := range infos {
		fmt.Fprintf(c.out, "%s  account %d  %s  ops %d\n",
			info.ID, info.Number, info.Holder, info.Operations)
	}
}

func (c *console) login(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return usage("login <account> <pin>")
	}
	number, err := parseNumber(args[0])
	if err != nil {
		return err
	}
	pin, err := parseNumber(args[1])
	if err != nil {
		return err
	}
	sess, err := c.sup.Open(ctx, number, pin)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "session %s opened for %s (account %d)\n", sess.ID, sess.Holder, sess.Number)
	return nil
}

func (c *console) logout(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usage("logout <session>")
	}
	sess, err := c.sup.Get(args[0])
	if err != nil {
		return err
	}
	if err := c.sup.Close(ctx, sess.ID); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "session %s closed\n", sess.ID)
	return nil
}

func (c *console) move(ctx context.Context, cmd string, args []string) error {
	if len(args) != 2 {
		return usage(cmd + " <session> <amount>")
	}
	sess, err := c.sup.Get(args[0])
	if err != nil {
		return err
	}
	amount, err := parseAmount(args[1])
	if err != nil {
		return err
	}

	var res bank.Result
	if cmd == "deposit" {
		res, err = sess.Deposit(ctx, amount)
	} else {
		res, err = sess.Withdraw(ctx, amount)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%s of %s done, balance %s\n", cmd, amount.StringFixed(2), res.Balance.StringFixed(2))
	return nil
}

func (c *console) transfer(ctx context.Context, args []string) error {
	if len(args) != 3 {
		return usage("transfer <session> <destination> <amount>")
	}
	sess, err := c.sup.Get(args[0])
	if err != nil {
		return err
	}
	dst, err := parseNumber(args[1])
	if err != nil {
		return err
	}
	amount, err := parseAmount(args[2])
	if err != nil {
		return err
	}
	res, err := sess.Transfer(ctx, dst, amount)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "transfer of %s to %d done, balance %s\n",
		amount.StringFixed(2), res.Counterparty.Number, res.Balance.StringFixed(2))
	return nil
}

func (c *console) balance(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usage("balance <session>")
	}
	sess, err := c.sup.Get(args[0])
	if err != nil {
		return err
	}
	res, err := sess.Query(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "account %d balance %s\n", res.Account.Number, res.Balance.StringFixed(2))
	return nil
}

func usage(form string) error {
	return errors.Wrapf(exception.ErrInvalidArgument, "usage: %s", form)
}

func parseNumber(raw string) (int32, error) {
	n, err := strconv.ParseInt(raw, 10, 32)
	if err != nil {
		return 0, errors.Wrapf(exception.ErrInvalidArgument, "not a number: %q", raw)
	}
	return int32(n), nil
}

func parseAmount(raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, errors.Wrapf(exception.ErrInvalidArgument, "not an amount: %q", raw)
	}
	return d, nil
}
