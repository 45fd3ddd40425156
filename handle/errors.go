package handle

import (
	"github.com/geds-project/geds/internal/xerrors"
	"github.com/geds-project/geds/objectid"
)

func notWritable(id objectid.ID) error {
	return xerrors.FailedPreconditionf("handle %s is not writable", id.Identifier())
}

func notSealable(id objectid.ID) error {
	return xerrors.FailedPreconditionf("handle %s is not sealable", id.Identifier())
}

func notTruncatable(id objectid.ID) error {
	return xerrors.FailedPreconditionf("handle %s is not truncatable", id.Identifier())
}

func notRawPtr(id objectid.ID) error {
	return xerrors.FailedPreconditionf("handle %s does not expose a raw pointer", id.Identifier())
}
